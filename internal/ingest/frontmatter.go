package ingest

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

var errNoFrontMatter = errors.New("no front matter found")
var errInvalidFrontMatter = errors.New("invalid front matter")

type FrontMatter struct {
	Title   string `yaml:"title"`
	Date    string `yaml:"date"`
	Excerpt string `yaml:"excerpt"`

	// tags 可能根本不是列表，所以先留成节点，TagList 里再做类型收敛
	Tags yaml.Node `yaml:"tags"`
}

// TagList coerces the tags field to a string slice. Anything that is not a
// sequence (missing, scalar, mapping) collapses to an empty list.
func (fm FrontMatter) TagList() []string {
	if fm.Tags.Kind != yaml.SequenceNode {
		return nil
	}
	var tags []string
	if err := fm.Tags.Decode(&tags); err != nil {
		return nil
	}
	return tags
}

// ParseFrontMatter splits raw file text into the YAML metadata block and
// the markdown body. Front matter is the `---` delimited head of the file.
func ParseFrontMatter(raw []byte) (FrontMatter, []byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return FrontMatter{}, raw, errNoFrontMatter
	}

	// 统一换行符
	norm := bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	norm = bytes.ReplaceAll(norm, []byte("\r"), []byte("\n"))

	const (
		sep      = "---"
		sepLine  = sep + "\n"
		closeMid = "\n" + sep + "\n"
	)

	if !bytes.HasPrefix(norm, []byte(sepLine)) {
		return FrontMatter{}, raw, errNoFrontMatter
	}

	// 去掉首行 "---\n"
	rest := norm[len(sepLine):]

	var yamlPart, bodyPart []byte

	// 优先走最常见的情况：中间有 "\n---\n"
	if parts := bytes.SplitN(rest, []byte(closeMid), 2); len(parts) == 2 {
		yamlPart = parts[0]
		bodyPart = parts[1]
	} else {
		// 可能是结尾是 "\n---" 且无正文
		if bytes.HasSuffix(rest, []byte("\n"+sep)) {
			yamlPart = rest[:len(rest)-len("\n"+sep)]
			bodyPart = nil
		} else if bytes.Equal(bytes.TrimSpace(rest), []byte(sep)) {
			// 处理 "---\n---" 这种“空 front matter，无正文”
			yamlPart = nil
			bodyPart = nil
		} else {
			return FrontMatter{}, raw, errInvalidFrontMatter
		}
	}

	yamlPart = bytes.TrimSpace(yamlPart)
	bodyPart = bytes.TrimSpace(bodyPart)

	var fm FrontMatter
	if len(yamlPart) > 0 {
		if err := yaml.Unmarshal(yamlPart, &fm); err != nil {
			return FrontMatter{}, raw, err
		}
	}
	return fm, bodyPart, nil
}
