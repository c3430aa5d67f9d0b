package gherkin

import (
	"fmt"
	"strings"

	messages "github.com/cucumber/messages/go/v21"
)

// expand turns a parsed Scenario into one or more Scenario handles: the
// scenario itself when it has no Examples blocks, or one handle per
// Examples row with `<placeholder>` substitution applied to its name and
// step text, per spec §4.3 ("for each scenario (expanded from Examples if
// any)").
func expand(path string, msg *messages.Scenario) []Scenario {
	if len(msg.Examples) == 0 {
		return []Scenario{{Path: path, msg: msg}}
	}

	var out []Scenario
	for _, ex := range msg.Examples {
		if ex.TableHeader == nil {
			continue
		}
		headers := cellValues(ex.TableHeader)
		exampleTags := tagNames(ex.Tags)

		for rowIdx, row := range ex.TableBody {
			values := cellValues(row)
			substituted := substituteScenario(msg, headers, values, ex.Name, rowIdx+1)
			out = append(out, Scenario{
				Path:        path,
				msg:         substituted,
				outlineID:   newID(path, row.Location, fmt.Sprintf("%s#%d", msg.Name, rowIdx)),
				exampleTags: exampleTags,
			})
		}
	}
	return out
}

func cellValues(row *messages.TableRow) []string {
	values := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		values[i] = c.Value
	}
	return values
}

// substituteScenario clones the outline's scenario message, substituting
// `<header>` occurrences in the name and every step's text/docstring/table
// with the row's values, and appending a disambiguating suffix to the name
// the way cucumber's reference runners do ("Name -- Examples (#N)").
func substituteScenario(outline *messages.Scenario, headers, values []string, examplesName string, row int) *messages.Scenario {
	replacer := buildReplacer(headers, values)

	clone := &messages.Scenario{
		Id:          outline.Id,
		Location:    outline.Location,
		Tags:        outline.Tags,
		Keyword:     outline.Keyword,
		Name:        outlineName(replacer(outline.Name), examplesName, row),
		Description: outline.Description,
	}
	clone.Steps = make([]*messages.Step, len(outline.Steps))
	for i, step := range outline.Steps {
		clone.Steps[i] = substituteStep(step, replacer)
	}
	return clone
}

func outlineName(base, examplesName string, row int) string {
	suffix := examplesName
	if suffix == "" {
		suffix = fmt.Sprintf("#%d", row)
	} else {
		suffix = fmt.Sprintf("%s (#%d)", examplesName, row)
	}
	return fmt.Sprintf("%s -- %s", base, suffix)
}

func substituteStep(step *messages.Step, replace func(string) string) *messages.Step {
	clone := &messages.Step{
		Id:       step.Id,
		Location: step.Location,
		Keyword:  step.Keyword,
		Text:     replace(step.Text),
	}
	if step.DocString != nil {
		ds := *step.DocString
		ds.Content = replace(step.DocString.Content)
		clone.DocString = &ds
	}
	if step.DataTable != nil {
		clone.DataTable = substituteTable(step.DataTable, replace)
	}
	return clone
}

func substituteTable(table *messages.DataTable, replace func(string) string) *messages.DataTable {
	rows := make([]*messages.TableRow, len(table.Rows))
	for i, row := range table.Rows {
		cells := make([]*messages.TableCell, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = &messages.TableCell{Location: cell.Location, Value: replace(cell.Value)}
		}
		rows[i] = &messages.TableRow{Id: row.Id, Location: row.Location, Cells: cells}
	}
	return &messages.DataTable{Location: table.Location, Rows: rows}
}

func buildReplacer(headers, values []string) func(string) string {
	return func(text string) string {
		for i, h := range headers {
			if i >= len(values) {
				break
			}
			text = strings.ReplaceAll(text, "<"+h+">", values[i])
		}
		return text
	}
}
