package template

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedTemplatesExist(t *testing.T) {
	names := []string{
		ReportQueryWriter, ReportPlanner, RewriteReportPlan, SectionQueryWeb,
		SectionQueryInternal, SectionWriter, SectionWriterInputs, SectionGrader,
		FinalSectionWriter, AnalystPlanner, AnalystReplanner, Executor,
	}
	for _, name := range names {
		content, err := GetPromptTemplate(context.Background(), name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, content, name)
	}
}

func TestUnknownTemplate(t *testing.T) {
	_, err := GetPromptTemplate(context.Background(), "does_not_exist")
	assert.Error(t, err)
}

func TestWorkingDirectoryOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "prompts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", SectionGrader+".md"), []byte("custom {{ topic }}"), 0o644))
	t.Chdir(dir)

	msgs, err := Format(context.Background(), SectionGrader, map[string]any{"topic": "batteries"})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "custom batteries", msgs[0].Content)
}

func TestFormatRendersSystemAndUser(t *testing.T) {
	msgs, err := Format(context.Background(), SectionQueryWeb, map[string]any{
		"topic":             "solid state batteries",
		"section_topic":     "manufacturing cost",
		"number_of_queries": 3,
	}, "Generate queries about {{ section_topic }}.")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "solid state batteries")
	assert.Contains(t, msgs[0].Content, "Generate 3 search queries")
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, "Generate queries about manufacturing cost.", msgs[1].Content)
}

func TestQueryWriterSwitchesOnMode(t *testing.T) {
	vars := map[string]any{
		"topic":               "t",
		"report_organization": "o",
		"number_of_queries":   2,
		"internal_documents":  "DOCS",
		"hybrid":              false,
	}
	msgs, err := Format(context.Background(), ReportQueryWriter, vars)
	require.NoError(t, err)
	assert.NotContains(t, msgs[0].Content, "internal_search_queries")
	assert.NotContains(t, msgs[0].Content, "DOCS")

	vars["hybrid"] = true
	msgs, err = Format(context.Background(), ReportQueryWriter, vars)
	require.NoError(t, err)
	assert.Contains(t, msgs[0].Content, "internal_search_queries")
	assert.Contains(t, msgs[0].Content, "DOCS")
}
