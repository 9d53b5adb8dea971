package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/hildam/deep-dive-go/entity/model"
	"github.com/hildam/deep-dive-go/repo/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	retryBackoff = time.Millisecond
}

var msgs = []*schema.Message{schema.UserMessage("hi")}

func TestInvokeParsesStructuredOutput(t *testing.T) {
	g := llmtest.NewScript(llmtest.Text("```json\n{\"queries\":[{\"search_query\":\"ev market\"}]}\n```"))

	out, err := Invoke[model.Queries](context.Background(), g, NameQueries, 0, msgs)
	require.NoError(t, err)
	assert.Equal(t, []string{"ev market"}, model.QueryStrings(out.Queries))
}

func TestInvokeSchemaErrorIsDistinct(t *testing.T) {
	g := llmtest.NewScript(llmtest.Text("not json"))

	_, err := Invoke[model.Queries](context.Background(), g, NameQueries, 3, msgs)
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
	assert.False(t, errors.Is(err, ErrTransport))
	// schema errors are not retried
	assert.Equal(t, 1, g.Calls())
}

func TestInvokeRunsValidation(t *testing.T) {
	g := llmtest.NewScript(llmtest.JSON(model.Feedback{Grade: "maybe"}))

	_, err := Invoke[model.Feedback](context.Background(), g, NameFeedback, 0, msgs)
	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, NameFeedback, se.Name)
}

func TestInvokeRetriesTransportErrors(t *testing.T) {
	g := llmtest.NewScript(
		llmtest.Fail(errors.New("429")),
		llmtest.JSON(model.Feedback{Grade: "pass"}),
	)

	out, err := Invoke[model.Feedback](context.Background(), g, NameFeedback, 1, msgs)
	require.NoError(t, err)
	assert.Equal(t, "pass", out.Grade)
	assert.Equal(t, 2, g.Calls())
}

func TestCompleteSurfacesTransportError(t *testing.T) {
	g := llmtest.NewScript(llmtest.Fail(errors.New("connection reset")))

	_, err := Complete(context.Background(), g, NameFinalWriter, 2, msgs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.False(t, IsSchemaError(err))
	assert.Equal(t, 3, g.Calls())
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("  {\"a\":1} "))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}```"))
}
