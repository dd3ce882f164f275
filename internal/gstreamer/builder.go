package gstreamer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smazurov/kvsnode/internal/credentials"
)

const redacted = "<redacted>"

// BuildDescription renders the gst-launch description for p. SessionToken
// credentials are passed to the sink through credentialFile, which the
// caller must have written with WriteCredentialFile. StaticKeys are passed
// inline as sink properties.
func BuildDescription(p Params, creds credentials.Credentials, credentialFile string) (string, error) {
	return build(p, creds, credentialFile, false)
}

// DescribeRedacted renders the same description with secrets masked, for
// logs and dry runs.
func DescribeRedacted(p Params, creds credentials.Credentials, credentialFile string) (string, error) {
	return build(p, creds, credentialFile, true)
}

func build(p Params, creds credentials.Credentials, credentialFile string, redact bool) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	stages := []string{
		sourceStage(p),
		encoderStage(p),
		"video/x-h264,stream-format=avc,alignment=au,profile=baseline",
	}

	sink, err := sinkStage(p, creds, credentialFile, redact)
	if err != nil {
		return "", err
	}
	stages = append(stages, sink)

	return strings.Join(stages, " ! "), nil
}

func sourceStage(p Params) string {
	if p.Synthetic() {
		return fmt.Sprintf("videotestsrc is-live=true ! video/x-raw,format=I420,width=%d,height=%d",
			p.Width, p.Height)
	}
	return fmt.Sprintf("v4l2src device=%s ! videoconvert ! video/x-raw,format=I420,width=%d,height=%d,framerate=%d/1",
		quote(p.DevicePath), p.Width, p.Height, p.FrameRate)
}

func encoderStage(p Params) string {
	return fmt.Sprintf("x264enc bframes=0 key-int-max=%d bitrate=%d tune=zerolatency", p.KeyIntMax, p.BitRate)
}

func sinkStage(p Params, creds credentials.Credentials, credentialFile string, redact bool) (string, error) {
	storage := p.StorageSizeMB
	if storage <= 0 {
		storage = DefaultStorageSizeMB
	}

	var sb strings.Builder
	sb.WriteString("kvssink stream-name=")
	sb.WriteString(quote(p.StreamName))
	sb.WriteString(" aws-region=")
	sb.WriteString(quote(p.Region))
	sb.WriteString(" storage-size=")
	sb.WriteString(strconv.Itoa(storage))

	switch c := creds.(type) {
	case credentials.SessionToken:
		if credentialFile == "" {
			return "", fmt.Errorf("%w: session token requires a credential file", ErrInvalidParams)
		}
		sb.WriteString(" credential-path=")
		sb.WriteString(quote(credentialFile))
	case credentials.StaticKeys:
		secret := c.SecretAccessKey
		if redact {
			secret = redacted
		}
		sb.WriteString(" access-key=")
		sb.WriteString(quote(c.AccessKeyID))
		sb.WriteString(" secret-key=")
		sb.WriteString(quote(secret))
	default:
		return "", fmt.Errorf("%w: unsupported credentials %T", ErrInvalidParams, creds)
	}

	return sb.String(), nil
}

// quote wraps a property value in double quotes when the launch parser
// would otherwise split or reinterpret it.
func quote(v string) string {
	if v != "" && !strings.ContainsFunc(v, needsQuoting) {
		return v
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range v {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

func needsQuoting(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:+@", r)
}
