package exam

import "strings"

// ImageSentinel marks an option string that is an image URL rather than text.
const ImageSentinel = "[IMG]"

func IsImageOption(opt string) bool {
	return strings.HasPrefix(opt, ImageSentinel)
}

// OptionValue returns the option without its sentinel, trimmed.
func OptionValue(opt string) string {
	return strings.TrimSpace(strings.TrimPrefix(opt, ImageSentinel))
}

type Option struct {
	Index    int    `json:"index"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

func RenderOptions(opts []string) []Option {
	out := make([]Option, len(opts))
	for i, opt := range opts {
		out[i] = Option{Index: i}
		if IsImageOption(opt) {
			out[i].ImageURL = OptionValue(opt)
		} else {
			out[i].Text = OptionValue(opt)
		}
	}
	return out
}
