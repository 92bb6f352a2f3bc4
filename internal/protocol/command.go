package protocol

import (
	"bytes"
	"strconv"
)

// CommandScanner decodes the outbound command grammar. The renderer itself
// never needs it; it exists for conformant workers and for checking that
// what the encoder writes can be read back unambiguously.
type CommandScanner struct {
	fields  [][]byte
	field   []byte
	need    int
	remain  int
	payload []byte
	inBody  bool
	offset  int64
	err     error
}

// NewCommandScanner returns a CommandScanner positioned at the start of a
// command.
func NewCommandScanner() *CommandScanner {
	return &CommandScanner{need: 2}
}

// Feed consumes chunk and returns every command it completes.
func (s *CommandScanner) Feed(chunk []byte) ([]Command, error) {
	if s.err != nil {
		return nil, s.err
	}

	var cmds []Command
	for i := 0; i < len(chunk); {
		if s.inBody {
			n := min(s.remain, len(chunk)-i)
			s.payload = append(s.payload, chunk[i:i+n]...)
			s.remain -= n
			s.offset += int64(n)
			i += n
			if s.remain == 0 {
				cmd, err := s.emit()
				if err != nil {
					return cmds, err
				}
				cmds = append(cmds, cmd)
			}
			continue
		}

		b := chunk[i]
		i++
		s.offset++
		if b != Delimiter {
			if len(s.field) >= maxHeaderField {
				return cmds, s.fail("field", "field exceeds maximum length")
			}
			s.field = append(s.field, b)
			continue
		}

		done, err := s.endField()
		if err != nil {
			return cmds, err
		}
		if done {
			cmd, err := s.emit()
			if err != nil {
				return cmds, err
			}
			cmds = append(cmds, cmd)
		}
	}
	return cmds, nil
}

// endField stores the finished header field and reports whether the command
// is complete.
func (s *CommandScanner) endField() (bool, error) {
	s.fields = append(s.fields, bytes.Clone(s.field))
	s.field = s.field[:0]

	if len(s.fields) == 2 {
		switch Kind(s.fields[1]) {
		case KindForeground, KindScale:
			s.need = 3
		case KindRequest:
			s.need = 6
		default:
			return false, s.fail("kind", "unknown command kind")
		}
	}
	if len(s.fields) < s.need {
		return false, nil
	}
	if s.need == 3 {
		return true, nil
	}

	n, ok := parseLength(s.fields[5])
	if !ok {
		return false, s.fail("length", "length is not a decimal integer")
	}
	if n > maxPayload {
		return false, s.fail("length", "length exceeds maximum")
	}
	s.remain = n
	s.payload = make([]byte, 0, min(n, payloadPrealloc))
	s.inBody = n > 0
	return n == 0, nil
}

func (s *CommandScanner) emit() (Command, error) {
	cmd := Command{
		ID:   string(s.fields[0]),
		Kind: Kind(s.fields[1]),
	}
	if cmd.Kind == KindRequest {
		var err error
		if cmd.Width, err = strconv.Atoi(string(s.fields[2])); err != nil {
			return Command{}, s.fail("width", "width is not an integer")
		}
		if cmd.Height, err = strconv.Atoi(string(s.fields[3])); err != nil {
			return Command{}, s.fail("height", "height is not an integer")
		}
		if cmd.Center, err = strconv.ParseBool(string(s.fields[4])); err != nil {
			return Command{}, s.fail("center", "center is not a boolean")
		}
		cmd.Payload = s.payload
	} else {
		cmd.Value = string(s.fields[2])
	}

	s.fields = s.fields[:0]
	s.payload = nil
	s.inBody = false
	s.need = 2
	return cmd, nil
}

func (s *CommandScanner) fail(field, reason string) error {
	s.err = &MalformedError{
		Offset: s.offset,
		Field:  field,
		Value:  bytes.Clone(s.field),
		Reason: reason,
	}
	return s.err
}
