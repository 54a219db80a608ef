package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mindlogger/applet-engine/internal/domain/applet"
)

// Structured fields (translated text, encryption, report settings,
// conditional logic) are stored as JSON text columns.

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding column: %w", err)
	}
	return string(data), nil
}

func decodeText(raw string) (applet.TranslatedText, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	var out applet.TranslatedText
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decoding translated text: %w", err)
	}
	return out, nil
}

func decodeEncryption(raw string) (applet.Encryption, error) {
	var out applet.Encryption
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return applet.Encryption{}, fmt.Errorf("decoding encryption: %w", err)
	}
	return out, nil
}

func decodeReport(raw string) (applet.ReportSettings, error) {
	if raw == "" || raw == "{}" {
		return applet.ReportSettings{}, nil
	}
	var out applet.ReportSettings
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return applet.ReportSettings{}, fmt.Errorf("decoding report settings: %w", err)
	}
	return out, nil
}

func encodeLogic(logic *applet.ConditionalLogic) (sql.NullString, error) {
	if logic == nil {
		return sql.NullString{}, nil
	}
	encoded, err := encodeJSON(logic)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: encoded, Valid: true}, nil
}

func decodeLogic(raw sql.NullString) (*applet.ConditionalLogic, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var out applet.ConditionalLogic
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("decoding conditional logic: %w", err)
	}
	return &out, nil
}

func encodeHistoryLogic(logic *applet.HistoryConditionalLogic) (sql.NullString, error) {
	if logic == nil {
		return sql.NullString{}, nil
	}
	encoded, err := encodeJSON(logic)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: encoded, Valid: true}, nil
}

func decodeHistoryLogic(raw sql.NullString) (*applet.HistoryConditionalLogic, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var out applet.HistoryConditionalLogic
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("decoding conditional logic: %w", err)
	}
	return &out, nil
}

func encodeRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func decodeRaw(raw sql.NullString) json.RawMessage {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	return json.RawMessage(raw.String)
}

func parseUUID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("decoding uuid column %q: %w", raw, err)
	}
	return id, nil
}
