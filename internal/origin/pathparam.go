package origin

import "strings"

// pathParamNames extracts the {name} placeholders from a URL template,
// matching the predecessor's use of Python f-string keyword extraction
// over url_template.format(**parameter_args).
func pathParamNames(template string) []string {
	var names []string
	i := 0
	for i < len(template) {
		open := strings.IndexByte(template[i:], '{')
		if open < 0 {
			break
		}
		open += i
		end := strings.IndexByte(template[open:], '}')
		if end < 0 {
			break
		}
		end += open
		names = append(names, template[open+1:end])
		i = end + 1
	}
	return names
}

func replacePathParam(template, name, value string) string {
	return strings.ReplaceAll(template, "{"+name+"}", value)
}
