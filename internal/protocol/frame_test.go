package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Frame
		wantErr error
	}{
		{name: "legacy text", input: `{"text":"We're open"}`, want: Chunk("We're open")},
		{name: "legacy empty text", input: `{"text":""}`, want: Chunk("")},
		{name: "legacy end", input: `{"end":true}`, want: Done()},
		{name: "legacy error", input: `{"error":"backend failure"}`, want: Error("backend failure")},
		{name: "typed chunk", input: `{"type":"chunk","text":" 9-5"}`, want: Chunk(" 9-5")},
		{name: "typed done", input: `{"type":"done"}`, want: Done()},
		{name: "typed error without text", input: `{"type":"error"}`, want: Error("")},
		{name: "type wins over legacy fields", input: `{"type":"done","text":"ignored"}`, want: Done()},
		{name: "typed chunk without text", input: `{"type":"chunk"}`, wantErr: ErrMalformedFrame},
		{name: "unknown type", input: `{"type":"typing"}`, wantErr: ErrUnknownFrameKind},
		{name: "empty object", input: `{}`, wantErr: ErrUnknownFrameKind},
		{name: "end false only", input: `{"end":false}`, wantErr: ErrUnknownFrameKind},
		{name: "not json", input: `hello`, wantErr: ErrMalformedFrame},
		{name: "array", input: `["text"]`, wantErr: ErrMalformedFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.input))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncodeKeepsLegacyFields(t *testing.T) {
	t.Parallel()

	data, err := Encode(Chunk("Hel"))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "chunk", raw["type"])
	assert.Equal(t, "Hel", raw["text"])

	data, err = Encode(Done())
	require.NoError(t, err)
	raw = map[string]any{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, true, raw["end"])

	data, err = Encode(Error("boom"))
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, Error("boom"), got)
}

func TestEncodeRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Encode(Frame{Kind: "typing"})
	require.ErrorIs(t, err, ErrUnknownFrameKind)
}

func TestRequestOmitsEmptyPatient(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(Request{UserInput: "What are your hours?", UserID: "anonymous"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"user_input":"What are your hours?","user_id":"anonymous"}`, string(data))
}
