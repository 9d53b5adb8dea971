package compiler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/deep-dive-go/agent/comm"
	"github.com/hildam/deep-dive-go/entity/conf"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/llm"
	"github.com/hildam/deep-dive-go/repo/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFollowsPlanOrder(t *testing.T) {
	plan := []model.Section{{Name: "Intro"}, {Name: "Market", Research: true}, {Name: "Conclusion"}}
	completed := []model.Section{
		{Name: "Market", Content: "market body"},
		{Name: "Conclusion", Content: "wrap up"},
		{Name: "Intro", Content: "hello"},
	}
	report, err := Compile(plan, completed)
	require.NoError(t, err)
	assert.Equal(t, "hello\n\nmarket body\n\nwrap up", report)
}

func TestCompileRejectsMissingAndDuplicateSections(t *testing.T) {
	plan := []model.Section{{Name: "Intro"}, {Name: "Market"}}

	_, err := Compile(plan, []model.Section{{Name: "Intro"}})
	assert.True(t, errors.Is(err, ErrSectionMissing))

	_, err = Compile(plan, []model.Section{{Name: "Intro"}, {Name: "Market"}, {Name: "Intro"}})
	assert.True(t, errors.Is(err, ErrDuplicateSection))

	_, err = Compile([]model.Section{{Name: "Intro"}, {Name: "Intro"}}, []model.Section{{Name: "Intro"}})
	assert.True(t, errors.Is(err, ErrDuplicateSection))
}

func TestFormatSections(t *testing.T) {
	sep := strings.Repeat("=", 60)
	out := FormatSections([]model.Section{
		{Name: "Market", Description: "size", Research: true, Content: "big"},
		{Name: "Outlook", Description: "next year"},
	})
	assert.Equal(t, "\n"+sep+"\nSection 1: Market\n"+sep+"\nDescription:\nsize\nRequires Research: \ntrue\n\nContent:\nbig\n\n"+
		"\n"+sep+"\nSection 2: Outlook\n"+sep+"\nDescription:\nnext year\nRequires Research: \nfalse\n\nContent:\n[Not yet written]\n\n", out)
	assert.Empty(t, FormatSections(nil))
}

func TestFinalWriterKeepsOrderAndUsesTranscript(t *testing.T) {
	writer := llmtest.Func(func(ctx context.Context, input []*schema.Message) (*schema.Message, error) {
		sys := input[0].Content
		if !strings.Contains(sys, "TRANSCRIPT") {
			return nil, errors.New("transcript missing from prompt")
		}
		for _, name := range []string{"Introduction", "Conclusion"} {
			if strings.Contains(sys, "<Section name>\n"+name+"\n</Section name>") {
				return schema.AssistantMessage(fmt.Sprintf("## %s\nwritten", name), nil), nil
			}
		}
		return nil, errors.New("unknown section")
	})
	deps := &comm.Deps{
		Roles:   &llm.Roles{FinalWriter: writer},
		Setting: conf.SettingConfig{MaxConcurrency: 2},
	}

	out, err := NewFinalWriter(deps).Write(context.Background(), "EV", "TRANSCRIPT",
		[]model.Section{{Name: "Introduction"}, {Name: "Conclusion"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "Introduction", out[0].Name)
	assert.Equal(t, "## Introduction\nwritten", out[0].Content)
	assert.Equal(t, "## Conclusion\nwritten", out[1].Content)
}

func TestFinalWriterSurfacesFailure(t *testing.T) {
	deps := &comm.Deps{Roles: &llm.Roles{FinalWriter: llmtest.NewScript(llmtest.Fail(errors.New("rate limited")))}}
	_, err := NewFinalWriter(deps).Write(context.Background(), "EV", "", []model.Section{{Name: "Intro"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrTransport))
}

func TestOrderedUsesPlan(t *testing.T) {
	got := ordered([]model.Section{{Name: "B"}, {Name: "A"}}, []model.Section{{Name: "A", Content: "a"}, {Name: "B", Content: "b"}})
	assert.Equal(t, []model.Section{{Name: "B", Content: "b"}, {Name: "A", Content: "a"}}, got)
}
