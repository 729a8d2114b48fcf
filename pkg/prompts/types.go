package prompts

// RenderPrompt は1パネル分のコンパイル済みレンダリング指示です。
// 同一の入力からは常に同一の RenderPrompt が得られます（純粋関数の出力）。
type RenderPrompt struct {
	PanelIndex  int
	Prompt      string
	AspectRatio string
	Width       int
	Height      int
}

// DefaultAspectRatio はパネル画像の標準アスペクト比です。
const DefaultAspectRatio = "3:2"

// DimensionsForAspect はアスペクト比の文字列を明示的な width/height に変換します。
// 画像生成サービスは文字列のアスペクト比ではなくピクセル指定で動作するためです。
func DimensionsForAspect(aspectRatio string) (width, height int) {
	switch aspectRatio {
	case "1:1":
		return 768, 768
	case "3:2":
		return 960, 640
	case "2:3":
		return 640, 960
	case "16:9":
		return 960, 540
	case "9:16":
		return 540, 960
	default:
		return 960, 640
	}
}
