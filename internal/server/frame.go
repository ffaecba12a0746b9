package server

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/plugctl/plugd/internal/control"
	"github.com/plugctl/plugd/internal/errorcodes"
)

// replyFrame is the wire shape of a control-channel reply. Exactly one of
// Result and Error is set.
type replyFrame struct {
	ID     string          `json:"id"`
	Result map[string]any  `json:"result,omitempty"`
	Error  *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// parseFrame decodes one inbound control frame of the form
//
//	{"id": "...", "method": "plugin",
//	 "params": {"subcommand": "...", "plugin"|"directory": "..."}}
//
// returning the frame id, the parsed command, and an InvalidParams error
// for anything malformed.
func parseFrame(data []byte) (string, control.Command, *errorcodes.ControlError) {
	if !gjson.ValidBytes(data) {
		return "", control.Command{}, errorcodes.InvalidParamsf("malformed control frame")
	}

	doc := gjson.ParseBytes(data)
	id := doc.Get("id").String()

	if method := doc.Get("method").String(); method != "plugin" {
		return id, control.Command{}, errorcodes.InvalidParamsf("unknown method %q", method)
	}

	sub, err := control.ParseSubcommand(doc.Get("params.subcommand").String())
	if err != nil {
		return id, control.Command{}, errorcodes.InvalidParamsf("%v", err)
	}

	cmd := control.Command{Sub: sub}
	if sub.TargetRequired() {
		param := "plugin"
		if sub == control.SubcommandStartDir {
			param = "directory"
		}
		target := doc.Get("params." + param)
		if !target.Exists() || target.String() == "" {
			return id, control.Command{}, errorcodes.InvalidParamsf("missing required parameter: %s", param)
		}
		cmd.Target = target.String()
	}

	return id, cmd, nil
}

// encodeReply serializes the terminal result of a control request.
func encodeReply(id string, res control.Result) []byte {
	frame := replyFrame{ID: id, Result: res.Reply}
	if res.Err != nil {
		frame.Result = nil
		frame.Error = &errorBody{Code: res.Err.Code, Message: res.Err.Detail}
	}

	out, err := json.Marshal(frame)
	if err != nil {
		// Reply payloads are maps of strings, statuses and numbers; this
		// is unreachable with well-formed results.
		return []byte(`{"error":{"code":-32603,"message":"reply encoding failed"}}`)
	}

	return out
}
