package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/lineage/internal/core/model"
)

var deathConflict = model.FieldConflict{
	Field:         model.FieldDeathDate,
	ExistingValue: "24 May 2018",
	NewValue:      "25 May 2018",
	NewConfidence: 0.7,
	NewSource:     "regex",
	IdentityKey:   "maxine kaczmarowski|b:1928|d:2018",
}

func TestPromptDecider(t *testing.T) {
	var out bytes.Buffer
	p := NewPromptDecider(strings.NewReader("what\n2\nm\n"), &out)

	d, err := p.Decide(context.Background(), deathConflict)
	require.NoError(t, err)
	assert.Equal(t, model.UseNew, d)
	assert.Contains(t, out.String(), "Please answer")
	assert.Contains(t, out.String(), "existing: 24 May 2018")

	d, err = p.Decide(context.Background(), deathConflict)
	require.NoError(t, err)
	assert.Equal(t, model.Merge, d)

	_, err = p.Decide(context.Background(), deathConflict)
	assert.ErrorIs(t, err, io.EOF)
}

func TestPromptDecider_LastLineWithoutNewline(t *testing.T) {
	p := NewPromptDecider(strings.NewReader("keep"), io.Discard)
	d, err := p.Decide(context.Background(), deathConflict)
	require.NoError(t, err)
	assert.Equal(t, model.KeepExisting, d)
}

func TestPromptDecider_ContextDone(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := NewPromptDecider(r, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Decide(ctx, deathConflict)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	go func() { _, _ = w.Write([]byte("skip\n")) }()
	d, err := p.Decide(context.Background(), deathConflict)
	require.NoError(t, err)
	assert.Equal(t, model.Skip, d)
}
