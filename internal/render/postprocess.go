package render

import (
	"regexp"
	"strings"
	"unicode"
)

// 阅读速度：中日文内容按字符计，每分钟 500 字
const charsPerMinute = 500

var (
	imgTag  = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	anyTag  = regexp.MustCompile(`(?s)<[^>]*>`)
	loading = regexp.MustCompile(`(?i)\bloading\s*=`)
)

// LazyImages adds lazy-loading and async-decoding hints to every <img> tag
// that does not already carry a loading attribute. Running it twice is the
// same as running it once.
func LazyImages(html string) string {
	return imgTag.ReplaceAllStringFunc(html, func(tag string) string {
		if loading.MatchString(tag) {
			return tag
		}
		return "<img loading=\"lazy\" decoding=\"async\"" + tag[len("<img"):]
	})
}

// StripTags removes markup, leaving the text content of the fragment.
func StripTags(html string) string {
	return anyTag.ReplaceAllString(html, "")
}

// ReadingTime estimates minutes to read rendered HTML: strip tags and all
// whitespace, count the remaining runes, divide by the per-minute rate,
// round up, never below one minute.
func ReadingTime(html string) int {
	text := StripTags(html)
	n := 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		n++
	}
	minutes := (n + charsPerMinute - 1) / charsPerMinute
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

// SearchText 给搜索索引用的纯文本：去标签、压空白。
func SearchText(html string) string {
	return strings.Join(strings.Fields(StripTags(html)), " ")
}
