package gstreamer

import "strings"

// MessageKind classifies a pipeline bus message.
type MessageKind int

// Bus message kinds reported by the media engine.
const (
	MessageLog MessageKind = iota
	MessageEOS
	MessageError
	MessageWarning
)

func (k MessageKind) String() string {
	switch k {
	case MessageEOS:
		return "eos"
	case MessageError:
		return "error"
	case MessageWarning:
		return "warning"
	default:
		return "log"
	}
}

// BusMessage is one message from the pipeline bus.
type BusMessage struct {
	Kind   MessageKind
	Source string
	Code   int
	Text   string
}

const (
	errorPrefix   = "ERROR: from element "
	warningPrefix = "WARNING: from element "
	eosPrefix     = "Got EOS from element "
)

// Lines gst-launch-1.0 prints when the description cannot be turned into a
// pipeline. Both end the run with exit status 1.
var constructionPrefixes = []string{
	"WARNING: erroneous pipeline: ",
	"ERROR: pipeline could not be constructed: ",
}

// ConstructionSource is the Source of bus messages that report a description
// the launcher could not construct.
const ConstructionSource = "pipeline"

// ParseBusLine classifies one line of gst-launch-1.0 output. Lines that
// carry no bus message come back as MessageLog with the line as Text.
func ParseBusLine(line string) BusMessage {
	line = strings.TrimRight(line, "\r\n")

	for _, prefix := range constructionPrefixes {
		if text, ok := strings.CutPrefix(line, prefix); ok {
			return BusMessage{Kind: MessageError, Source: ConstructionSource, Text: strings.TrimSpace(text)}
		}
	}

	switch {
	case strings.HasPrefix(line, errorPrefix):
		src, text := splitElement(line[len(errorPrefix):])
		return BusMessage{Kind: MessageError, Source: src, Text: text}
	case strings.HasPrefix(line, warningPrefix):
		src, text := splitElement(line[len(warningPrefix):])
		return BusMessage{Kind: MessageWarning, Source: src, Text: text}
	case strings.HasPrefix(line, eosPrefix):
		src := strings.TrimSuffix(line[len(eosPrefix):], ".")
		return BusMessage{Kind: MessageEOS, Source: strings.Trim(src, `"`)}
	}
	return BusMessage{Kind: MessageLog, Text: line}
}

// splitElement splits "/GstPipeline:pipeline0/GstV4l2Src:v4l2src0: message"
// into the element name "v4l2src0" and "message".
func splitElement(rest string) (source, text string) {
	path, text, found := strings.Cut(rest, ": ")
	if !found {
		path, text = strings.TrimSuffix(rest, ":"), ""
	}
	source = ElementName(path)
	return source, strings.TrimSpace(text)
}

// ElementName returns the last element name of a GstObject path.
func ElementName(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndex(path, ":"); i >= 0 {
		path = path[i+1:]
	}
	return path
}
