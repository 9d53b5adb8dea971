package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionSourcesAcceptBothShapes(t *testing.T) {
	var listed Section
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": "Market",
		"sources": [{"index": 1, "segment_text": "grew", "confidence_scores": [0.9],
			"sources": [{"title": "Report", "url": "https://example.com"}]}]
	}`), &listed))
	require.Len(t, listed.Sources, 1)
	assert.Equal(t, "https://example.com", listed.Sources[0].Sources[0].URL)

	var plain Section
	require.NoError(t, json.Unmarshal([]byte(`{"name": "Intro", "sources": ""}`), &plain))
	assert.Empty(t, plain.Sources)

	var missing Section
	require.NoError(t, json.Unmarshal([]byte(`{"name": "Intro"}`), &missing))
	assert.Empty(t, missing.Sources)
}

func TestSourceListTitlesDeduplicates(t *testing.T) {
	l := SourceList{
		{Sources: []SourceRef{{Title: "A", URL: "https://a"}, {Title: "B"}}},
		{Sources: []SourceRef{{Title: "A", URL: "https://a"}}},
	}
	assert.Equal(t, []string{"https://a", "B"}, l.Titles())
}

func TestParseFeedback(t *testing.T) {
	fb, err := ParseFeedback(true)
	require.NoError(t, err)
	assert.True(t, fb.Approved)

	fb, err = ParseFeedback("add a section on pricing")
	require.NoError(t, err)
	assert.False(t, fb.Approved)
	assert.Equal(t, "add a section on pricing", fb.Text)

	for _, bad := range []any{false, "", "   ", 42, 1.5, nil, map[string]any{}} {
		_, err := ParseFeedback(bad)
		assert.True(t, errors.Is(err, ErrInvalidFeedback), "payload %#v", bad)
	}
}

func TestFeedbackValidate(t *testing.T) {
	assert.NoError(t, (&Feedback{Grade: "pass"}).Validate())
	assert.NoError(t, (&Feedback{Grade: "fail"}).Validate())
	assert.Error(t, (&Feedback{Grade: "PASS"}).Validate())
}

func TestSectionsValidate(t *testing.T) {
	assert.NoError(t, (&Sections{Sections: []Section{{Name: "Intro"}, {Name: "Market"}}}).Validate())
	assert.Error(t, (&Sections{}).Validate())
	assert.Error(t, (&Sections{Sections: []Section{{Name: " "}}}).Validate())
	err := (&Sections{Sections: []Section{{Name: "Market"}, {Name: "Intro"}, {Name: "Market"}}}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Market"`)
}

func TestFormatDocuments(t *testing.T) {
	out := FormatDocuments([]Document{{Name: "10-K", DocumentType: "filing", Domain: "finance", Description: "annual"}})
	assert.Equal(t, "########Document 1#########\n"+
		"Name: 10-K\n"+
		"Type: filing\n"+
		"Domain: finance\n"+
		"Description: annual\n\n"+
		"#########################################\n\n", out)
	assert.Empty(t, FormatDocuments(nil))
}

func TestQueryStringsSkipsBlank(t *testing.T) {
	got := QueryStrings([]SearchQuery{{"a"}, {" "}, {"b "}})
	assert.Equal(t, []string{"a", "b"}, got)
}
