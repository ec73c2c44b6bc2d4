// Package payload encodes the data carried by inline buttons.
//
// A payload is a tag followed by one length-prefixed segment per argument:
//
//	<tag>|<len>:<value>|<len>:<value>...
//
// Lengths count bytes, so values may contain any character, including the
// separators. Encoded payloads never exceed MaxLength bytes.
package payload

import (
	"fmt"
	"strconv"
	"strings"

	"helpdesk-bot/internal/common/errors"
	"helpdesk-bot/internal/models"
)

// MaxLength is the chat platform's limit for button data.
const MaxLength = 64

// Tag identifies the button's operation.
type Tag string

const (
	TagOffer  Tag = "of" // kind, applicant id
	TagAccept Tag = "ac" // kind, responder handle, applicant id
	TagFinish Tag = "fi" // responder handle, applicant id
	TagReview Tag = "rv" // score, responder handle
)

var arity = map[Tag]int{
	TagOffer:  2,
	TagAccept: 3,
	TagFinish: 2,
	TagReview: 2,
}

// Kinds are stored as one letter to leave room for the handle.
var (
	kindCodes = map[models.HelpKind]string{models.HelpFull: "f", models.HelpPartial: "p"}
	codeKinds = map[string]models.HelpKind{"f": models.HelpFull, "p": models.HelpPartial}
)

// Action is a decoded payload. Only the fields its Tag carries are set.
type Action struct {
	Tag         Tag
	Kind        models.HelpKind
	Handle      string
	ApplicantID int64
	Score       int
}

func EncodeOffer(kind models.HelpKind, applicantID int64) (string, error) {
	code, ok := kindCodes[kind]
	if !ok {
		return "", fmt.Errorf("encode offer: unknown help kind %q", kind)
	}
	return encode(TagOffer, code, strconv.FormatInt(applicantID, 10))
}

func EncodeAccept(kind models.HelpKind, handle string, applicantID int64) (string, error) {
	code, ok := kindCodes[kind]
	if !ok {
		return "", fmt.Errorf("encode accept: unknown help kind %q", kind)
	}
	return encode(TagAccept, code, models.NormalizeHandle(handle), strconv.FormatInt(applicantID, 10))
}

func EncodeFinish(handle string, applicantID int64) (string, error) {
	return encode(TagFinish, models.NormalizeHandle(handle), strconv.FormatInt(applicantID, 10))
}

func EncodeReview(score int, handle string) (string, error) {
	if score < models.MinScore || score > models.MaxScore {
		return "", fmt.Errorf("encode review: score %d out of range", score)
	}
	return encode(TagReview, strconv.Itoa(score), models.NormalizeHandle(handle))
}

func encode(tag Tag, args ...string) (string, error) {
	var b strings.Builder
	b.WriteString(string(tag))
	for _, a := range args {
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(len(a)))
		b.WriteByte(':')
		b.WriteString(a)
	}
	if b.Len() > MaxLength {
		return "", fmt.Errorf("encode %s: payload is %d bytes, limit %d", tag, b.Len(), MaxLength)
	}
	return b.String(), nil
}

// Decode parses a payload. Every failure is a MalformedPayload error.
func Decode(data string) (*Action, error) {
	if len(data) > MaxLength {
		return nil, errors.NewMalformedPayloadError(data, "payload too long")
	}

	tag, rest := data, ""
	if i := strings.IndexByte(data, '|'); i >= 0 {
		tag, rest = data[:i], data[i:]
	}
	want, ok := arity[Tag(tag)]
	if !ok {
		return nil, errors.NewMalformedPayloadError(data, "unknown tag")
	}

	args, err := splitArgs(rest)
	if err != nil {
		return nil, errors.NewMalformedPayloadError(data, err.Error())
	}
	if len(args) != want {
		return nil, errors.NewMalformedPayloadError(data,
			fmt.Sprintf("tag %s takes %d arguments, got %d", tag, want, len(args)))
	}

	action := &Action{Tag: Tag(tag)}
	switch action.Tag {
	case TagOffer:
		err = decodeKind(args[0], action)
		if err == nil {
			action.ApplicantID, err = decodeID(args[1])
		}
	case TagAccept:
		err = decodeKind(args[0], action)
		if err == nil {
			action.Handle, err = decodeHandle(args[1])
		}
		if err == nil {
			action.ApplicantID, err = decodeID(args[2])
		}
	case TagFinish:
		action.Handle, err = decodeHandle(args[0])
		if err == nil {
			action.ApplicantID, err = decodeID(args[1])
		}
	case TagReview:
		action.Score, err = decodeScore(args[0])
		if err == nil {
			action.Handle, err = decodeHandle(args[1])
		}
	}
	if err != nil {
		return nil, errors.NewMalformedPayloadError(data, err.Error())
	}
	return action, nil
}

func splitArgs(s string) ([]string, error) {
	var args []string
	for len(s) > 0 {
		if s[0] != '|' {
			return nil, fmt.Errorf("expected '|' at %q", s)
		}
		s = s[1:]

		sizeText, tail, ok := strings.Cut(s, ":")
		if !ok {
			return nil, fmt.Errorf("missing length prefix")
		}
		size, err := strconv.Atoi(sizeText)
		if err != nil || size < 0 || strconv.Itoa(size) != sizeText {
			return nil, fmt.Errorf("bad length %q", sizeText)
		}
		if size > len(tail) {
			return nil, fmt.Errorf("argument length %d exceeds remaining %d bytes", size, len(tail))
		}
		args = append(args, tail[:size])
		s = tail[size:]
	}
	return args, nil
}

func decodeKind(s string, a *Action) error {
	kind, ok := codeKinds[s]
	if !ok {
		return fmt.Errorf("unknown help kind %q", s)
	}
	a.Kind = kind
	return nil
}

func decodeID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad applicant id %q", s)
	}
	return id, nil
}

func decodeHandle(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty handle")
	}
	return s, nil
}

func decodeScore(s string) (int, error) {
	score, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad score %q", s)
	}
	if score < models.MinScore || score > models.MaxScore {
		return 0, fmt.Errorf("score %d out of range", score)
	}
	return score, nil
}
