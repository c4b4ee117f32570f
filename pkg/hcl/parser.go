package hcl

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/leowmjw/go-health-timeline/pkg/temporal"
	"github.com/leowmjw/go-health-timeline/pkg/timeline"
)

// HCLPipeline represents the HCL pipeline configuration
type HCLPipeline struct {
	ExportID   string         `hcl:"export_id"`
	Year       string         `hcl:"year"`
	Categories []string       `hcl:"categories,optional"`
	Window     *HCLWindow     `hcl:"window,block"`
	Correlate  []HCLCorrelate `hcl:"correlate,block"`
}

// HCLWindow configures date alignment
type HCLWindow struct {
	Reference string   `hcl:"reference"`
	Days      *int     `hcl:"days,optional"`
	Dates     []string `hcl:"dates,optional"`
	Align     []string `hcl:"align,optional"`
}

// HCLCorrelate names a pair of aggregated categories
type HCLCorrelate struct {
	Name string `hcl:"name,label"`
	A    string `hcl:"a"`
	B    string `hcl:"b"`
}

// dateFunc checks a YYYY-MM-DD literal at parse time
var dateFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{
			Name: "date",
			Type: cty.String,
		},
	},
	Type: function.StaticReturnType(cty.String),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		raw := args[0].AsString()
		if _, err := time.Parse(timeline.DateLayout, raw); err != nil {
			return cty.NilVal, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
		}
		return args[0], nil
	},
})

// newEvalContext exposes date() and a category object, so configs can say
// category.heart_rate instead of "heart_rate_data".
func newEvalContext() *hcl.EvalContext {
	names := timeline.DefaultOutputNames()
	categories := make(map[string]cty.Value, len(names))
	for _, name := range names {
		categories[strings.TrimSuffix(name, "_data")] = cty.StringVal(name)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"category": cty.ObjectVal(categories),
		},
		Functions: map[string]function.Function{
			"date": dateFunc,
		},
	}
}

// ParsePipelineConfig parses HCL content and converts it to a temporal.PipelineRequest
func ParsePipelineConfig(hclContent string) (*temporal.PipelineRequest, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL([]byte(hclContent), "pipeline.hcl")
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL: %s", diags.Error())
	}
	return parsePipelineFromFile(file)
}

func parsePipelineFromFile(file *hcl.File) (*temporal.PipelineRequest, error) {
	var pipeline HCLPipeline
	diags := gohcl.DecodeBody(file.Body, newEvalContext(), &pipeline)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL body: %s", diags.Error())
	}

	request := convertHCLPipeline(&pipeline)
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return request, nil
}

func convertHCLPipeline(p *HCLPipeline) *temporal.PipelineRequest {
	request := &temporal.PipelineRequest{
		ExportID: p.ExportID,
		Year:     p.Year,
		Plan: timeline.Plan{
			Categories: p.Categories,
		},
	}

	if p.Window != nil {
		request.Plan.Reference = p.Window.Reference
		request.Plan.WindowDates = p.Window.Dates
		request.Plan.Align = p.Window.Align
		if p.Window.Days != nil {
			request.Plan.WindowDays = *p.Window.Days
		}
	}

	for _, c := range p.Correlate {
		request.Plan.Correlate = append(request.Plan.Correlate, timeline.CorrelationPair{
			Name: c.Name,
			A:    c.A,
			B:    c.B,
		})
	}
	return request
}

// IsHCL attempts to detect if the given content is in HCL format
func IsHCL(content []byte) bool {
	_, diags := hclsyntax.ParseConfig(content, "", hcl.Pos{Line: 1, Column: 1})
	return !diags.HasErrors()
}
