package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugctl/plugd/internal/control"
	"github.com/plugctl/plugd/internal/errorcodes"
)

func TestParseFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		frame      string
		wantCmd    control.Command
		wantErr    string
	}{
		{
			name:    "start",
			frame:   `{"id":"1","method":"plugin","params":{"subcommand":"start","plugin":"/bin/true"}}`,
			wantCmd: control.Command{Sub: control.SubcommandStart, Target: "/bin/true"},
		},
		{
			name:    "stop",
			frame:   `{"id":"2","method":"plugin","params":{"subcommand":"stop","plugin":"foo"}}`,
			wantCmd: control.Command{Sub: control.SubcommandStop, Target: "foo"},
		},
		{
			name:    "startdir",
			frame:   `{"id":"3","method":"plugin","params":{"subcommand":"startdir","directory":"/opt/plugins"}}`,
			wantCmd: control.Command{Sub: control.SubcommandStartDir, Target: "/opt/plugins"},
		},
		{
			name:    "rescan",
			frame:   `{"id":"4","method":"plugin","params":{"subcommand":"rescan"}}`,
			wantCmd: control.Command{Sub: control.SubcommandRescan},
		},
		{
			name:    "list",
			frame:   `{"id":"5","method":"plugin","params":{"subcommand":"list"}}`,
			wantCmd: control.Command{Sub: control.SubcommandList},
		},
		{
			name:    "not json",
			frame:   `plugin start`,
			wantErr: "malformed control frame",
		},
		{
			name:    "unknown method",
			frame:   `{"id":"6","method":"shutdown","params":{}}`,
			wantErr: "unknown method",
		},
		{
			name:    "unknown subcommand",
			frame:   `{"id":"7","method":"plugin","params":{"subcommand":"restart"}}`,
			wantErr: "unknown subcommand",
		},
		{
			name:    "start without plugin",
			frame:   `{"id":"8","method":"plugin","params":{"subcommand":"start"}}`,
			wantErr: "missing required parameter: plugin",
		},
		{
			name:    "startdir without directory",
			frame:   `{"id":"9","method":"plugin","params":{"subcommand":"startdir"}}`,
			wantErr: "missing required parameter: directory",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, cmd, perr := parseFrame([]byte(tt.frame))
			if tt.wantErr != "" {
				require.NotNil(t, perr)
				assert.Equal(t, errorcodes.CodeInvalidParams, perr.Code)
				assert.Contains(t, perr.Detail, tt.wantErr)
				return
			}

			require.Nil(t, perr)
			assert.Equal(t, tt.wantCmd, cmd)
		})
	}
}

func TestEncodeReplySuccess(t *testing.T) {
	t.Parallel()

	out := encodeReply("42", control.Result{Reply: map[string]any{"result": "Successfully stopped foo."}})

	var decoded struct {
		ID     string         `json:"id"`
		Result map[string]any `json:"result"`
		Error  *errorBody     `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "42", decoded.ID)
	assert.Nil(t, decoded.Error)
	assert.Equal(t, "Successfully stopped foo.", decoded.Result["result"])
}

func TestEncodeReplyError(t *testing.T) {
	t.Parallel()

	out := encodeReply("42", control.Result{Err: errorcodes.InvalidParamsf("Could not find plugin foo")})

	var decoded struct {
		ID     string         `json:"id"`
		Result map[string]any `json:"result"`
		Error  *errorBody     `json:"error"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Nil(t, decoded.Result)
	require.NotNil(t, decoded.Error)
	assert.Equal(t, errorcodes.CodeInvalidParams, decoded.Error.Code)
	assert.Equal(t, "Could not find plugin foo", decoded.Error.Message)
}

func TestEncodeReplyLegacyStopKeys(t *testing.T) {
	t.Parallel()

	reply := map[string]any{
		"result": "Successfully stopped foo.",
		"":       "Successfully stopped foo.",
	}
	out := encodeReply("42", control.Result{Reply: reply})

	var decoded struct {
		Result map[string]any `json:"result"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, decoded.Result["result"], decoded.Result[""])
}
