package modem

import (
	"context"
	"fmt"
	"time"

	"i4.energy/across/cellgw/at"
)

// FileInfo describes one file on the module's flash storage.
type FileInfo struct {
	Name string
	Size int
}

// UploadFile stores data as a named file on the module's flash, typically a
// certificate for a TLS context. The module opens an upload channel with a
// CONNECT prompt, receives the bytes and confirms with the stored size and
// checksum. The reported checksum is returned for callers that track file
// integrity.
func (m *Modem) UploadFile(ctx context.Context, name string, data []byte) (uint16, error) {
	if name == "" || len(data) == 0 {
		return 0, fmt.Errorf("%w: file name and content are required", ErrBadParameter)
	}

	resp, err := m.Exchange(ctx, Command{
		Text:    fmt.Sprintf(`AT+QFUPL="%s",%d`, name, len(data)),
		Shape:   ShapePrompt,
		Payload: data,
		Prefix:  "+QFUPL:",
		Timeout: 30 * time.Second,
	})
	if err != nil {
		return 0, fmt.Errorf("upload %q: %w", name, err)
	}

	f, err := at.FieldsAfterPrefix(resp.FirstLine(), "+QFUPL:")
	if err != nil {
		return 0, fmt.Errorf("upload %q: %w", name, err)
	}
	stored, err := f.NextInt(10, 32)
	if err != nil {
		return 0, err
	}
	if int(stored) != len(data) {
		return 0, fmt.Errorf("%w: stored %d of %d bytes", ErrProtocolMismatch, stored, len(data))
	}
	crc, err := f.NextUint(16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(crc), nil
}

// DeleteFile removes a stored file. Deleting a file that does not exist is a
// device-reported failure.
func (m *Modem) DeleteFile(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty file name", ErrBadParameter)
	}
	if err := m.expectOK(ctx, fmt.Sprintf(`AT+QFDEL="%s"`, name)); err != nil {
		return fmt.Errorf("delete %q: %w", name, err)
	}
	return nil
}

// FileCRC returns the module-computed checksum of a stored file, for
// comparison against the value reported at upload time.
func (m *Modem) FileCRC(ctx context.Context, name string) (uint16, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty file name", ErrBadParameter)
	}
	resp, err := m.Exchange(ctx, Command{
		Text:   fmt.Sprintf(`AT+QFCRC="%s"`, name),
		Shape:  ShapePrefix,
		Prefix: "+QFCRC:",
	})
	if err != nil {
		return 0, fmt.Errorf("checksum %q: %w", name, err)
	}

	f, err := at.FieldsAfterPrefix(resp.FirstLine(), "+QFCRC:")
	if err != nil {
		return 0, fmt.Errorf("checksum %q: %w", name, err)
	}
	crc, err := f.NextUint(16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(crc), nil
}

// ListFiles lists stored files matching pattern ("*" for all).
func (m *Modem) ListFiles(ctx context.Context, pattern string) ([]FileInfo, error) {
	if pattern == "" {
		pattern = "*"
	}
	resp, err := m.Exchange(ctx, Command{
		Text:   fmt.Sprintf(`AT+QFLST="%s"`, pattern),
		Shape:  ShapeMultiline,
		Prefix: "+QFLST:",
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	files := make([]FileInfo, 0, len(resp.Lines))
	for _, line := range resp.Lines {
		f, err := at.FieldsAfterPrefix(line.Text, "+QFLST:")
		if err != nil {
			return nil, err
		}
		name, err := f.NextUnquoted()
		if err != nil {
			return nil, err
		}
		size, err := f.NextInt(10, 32)
		if err != nil {
			return nil, err
		}
		files = append(files, FileInfo{Name: name, Size: int(size)})
	}
	return files, nil
}
