package auth

import "github.com/google/uuid"

// parseUUID wraps uuid.Parse so bad identifiers map to the package's rich
// error instead of the raw parse failure.
func parseUUID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		clone := ErrUnableToParseData.Clone()
		clone.Source = err
		return uuid.Nil, clone.WithMetadata(map[string]any{"value": s})
	}
	return id, nil
}

// HasUserUUID reports whether the identity carries a parseable uuid.
func HasUserUUID(identity Identity) bool {
	if identity == nil {
		return false
	}
	_, err := identity.UserUUID()
	return err == nil
}
