package streams

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/smazurov/kvsnode/internal/devices"
)

// CommandKind identifies what an inbound request asks for.
type CommandKind int

// Command kinds.
const (
	CommandMissing CommandKind = iota
	CommandInvalid
	CommandStart
	CommandStop
	CommandStatus
)

func (k CommandKind) String() string {
	switch k {
	case CommandMissing:
		return "missing"
	case CommandInvalid:
		return "invalid"
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Messages for requests that never reach the controller state.
const (
	MessageMissingInput = "Missing input"
	MessageInvalidTask  = "Invalid task or task not specified"
)

// Command is a parsed inbound request.
type Command struct {
	Kind CommandKind
	// Params is set for CommandStart.
	Params ConnectionParameters
	// Reason explains a CommandInvalid.
	Reason string
}

// StartCommand returns a start command for params with defaults applied.
func StartCommand(params ConnectionParameters) Command {
	return Command{Kind: CommandStart, Params: params.WithDefaults()}
}

// StopCommand returns a stop command.
func StopCommand() Command { return Command{Kind: CommandStop} }

// StatusCommand returns a status command.
func StatusCommand() Command { return Command{Kind: CommandStatus} }

func invalid(reason string) Command {
	return Command{Kind: CommandInvalid, Reason: reason}
}

// ParseCommand interprets a request map. A nil map is a missing input. The
// "task" key selects the command. Start requests carry the connection
// parameters; required fields are checked later by the controller.
func ParseCommand(request map[string]any) Command {
	if request == nil {
		return Command{Kind: CommandMissing}
	}

	task, _ := request["task"].(string)
	switch strings.ToLower(strings.TrimSpace(task)) {
	case "start":
		return parseStart(request)
	case "stop":
		return StopCommand()
	case "status":
		return StatusCommand()
	default:
		return invalid(MessageInvalidTask)
	}
}

func parseStart(request map[string]any) Command {
	var params ConnectionParameters

	device, err := videoDevice(request)
	if err != nil {
		return invalid(err.Error())
	}
	params.VideoDevice = device
	params.StreamName = stringField(request, "streamName")
	params.AWSRegion = stringField(request, "awsRegion")

	numeric := []struct {
		key string
		dst *int
	}{
		{"frameSizeWidth", &params.FrameSizeWidth},
		{"frameSizeHeight", &params.FrameSizeHeight},
		{"frameRate", &params.FrameRate},
		{"bitRate", &params.BitRate},
		{"keyIntMax", &params.KeyIntMax},
	}
	for _, f := range numeric {
		raw, ok := request[f.key]
		if !ok || raw == nil {
			continue
		}
		v, ok := positiveInt(raw)
		if !ok {
			return invalid(f.key + " must be a positive integer")
		}
		*f.dst = v
	}

	return StartCommand(params)
}

// videoDevice applies the device rules: absent selects the default camera,
// empty selects the test source, stable IDs resolve to their symlink.
func videoDevice(request map[string]any) (string, error) {
	raw, ok := request["videoDevice"]
	if !ok || raw == nil {
		return devices.DefaultDevice, nil
	}
	device, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("videoDevice must be a string")
	}
	device = strings.TrimSpace(device)
	if device == "" {
		return "", nil
	}
	path, err := devices.ResolveDevicePath(device)
	if err != nil {
		return "", fmt.Errorf("videoDevice %s not found", device)
	}
	return path, nil
}

func stringField(request map[string]any, key string) string {
	s, _ := request[key].(string)
	return strings.TrimSpace(s)
}

// positiveInt accepts JSON numbers, Go integers and decimal strings.
func positiveInt(raw any) (int, bool) {
	var n float64
	switch v := raw.(type) {
	case int:
		n = float64(v)
	case int64:
		n = float64(v)
	case float64:
		n = v
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		n = f
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		n = float64(i)
	default:
		return 0, false
	}
	if n <= 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}
