package payload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantKey string
		wantRaw string
		wantErr bool
	}{
		{
			name:    "single payload",
			args:    []string{`scene={"_id":"abc"}`},
			wantKey: "scene",
			wantRaw: `{"_id":"abc"}`,
		},
		{
			name:    "payload followed by flags",
			args:    []string{"blender", "--", `params={"_id":"m1"}`, "is360=1 steps=4"},
			wantKey: "params",
			wantRaw: `{"_id":"m1"}`,
		},
		{
			name:    "json value containing equals sign",
			args:    []string{`p={"expr":"a=b"}`},
			wantKey: "p",
			wantRaw: `{"expr":"a=b"}`,
		},
		{
			name:    "last payload wins",
			args:    []string{`a={"n":1}`, `b={"n":2}`},
			wantKey: "b",
			wantRaw: `{"n":2}`,
		},
		{"no equals sign", []string{`{"_id":"abc"}`}, "", "", true},
		{"empty args", nil, "", "", true},
		{"value is not json", []string{"key=value"}, "", "", true},
		{"broken json", []string{`scene={"_id":`}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Extract(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrArgumentParse), "expected ErrArgumentParse, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKey, p.Key)
			assert.Equal(t, tt.wantRaw, string(p.Raw))
		})
	}
}

func TestDecode(t *testing.T) {
	doc, err := FromJSON("scene", []byte(`{"_id":"abc","sceneList":[{"objects":[]}]}`)).Decode()
	require.NoError(t, err)
	assert.Equal(t, "abc", doc["_id"])
	assert.Len(t, doc["sceneList"], 1)

	_, err = FromJSON("scene", []byte(`null`)).Decode()
	assert.ErrorIs(t, err, ErrArgumentParse)

	_, err = FromJSON("scene", []byte(`[1,2]`)).Decode()
	assert.ErrorIs(t, err, ErrArgumentParse)
}

func TestParseTurntableFlags(t *testing.T) {
	tests := []struct {
		name    string
		arg     string
		want    TurntableFlags
		wantErr bool
	}{
		{"turntable", "is360=1 steps=4", TurntableFlags{Is360: true, Steps: 4}, false},
		{"multi digit steps", "is360=1 steps=36", TurntableFlags{Is360: true, Steps: 36}, false},
		{"still ignores steps", "is360=0 steps=0", TurntableFlags{Is360: false, Steps: 0}, false},
		{"still without steps", "is360=0", TurntableFlags{}, false},
		{"boolean words", "is360=true steps=8", TurntableFlags{Is360: true, Steps: 8}, false},
		{"quoted", `"is360=1" 'steps=2'`, TurntableFlags{Is360: true, Steps: 2}, false},
		{"zero steps for 360", "is360=1 steps=0", TurntableFlags{}, true},
		{"negative steps", "is360=1 steps=-3", TurntableFlags{}, true},
		{"missing is360", "steps=4", TurntableFlags{}, true},
		{"bad is360", "is360=maybe steps=4", TurntableFlags{}, true},
		{"bad steps", "is360=1 steps=four", TurntableFlags{}, true},
		{"no equals", "is360 4", TurntableFlags{}, true},
		{"unknown key", "is360=1 steps=4 speed=2", TurntableFlags{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTurntableFlags(tt.arg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrArgumentParse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFindFlags(t *testing.T) {
	arg, ok := FindFlags([]string{`m={"_id":"x"}`, "is360=1 steps=2"})
	assert.True(t, ok)
	assert.Equal(t, "is360=1 steps=2", arg)

	_, ok = FindFlags([]string{`m={"_id":"x"}`})
	assert.False(t, ok)
}
