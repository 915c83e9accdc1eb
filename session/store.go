package session

import "errors"

var errCannotSaveNil = errors.New("session: cannot save nil snapshot")

// requireID rejects the empty session id. Backends add their own
// constraints on top (FileStore ids double as file names).
func requireID(id string) error {
	if id == "" {
		return errors.New("session id must not be empty")
	}
	return nil
}
