package httpdoc

import (
	docsync "github.com/c0deZ3R0/go-docsync"
)

// snapshotPayload is the body of a collection fetch response.
type snapshotPayload struct {
	Docs []docsync.Record `json:"docs"`
}

// wireChange is one change event on the watch stream.
type wireChange struct {
	Kind string         `json:"kind"`
	ID   string         `json:"id"`
	Doc  docsync.Record `json:"doc,omitempty"`
}

func toWire(ch docsync.Change) wireChange {
	return wireChange{Kind: string(ch.Kind), ID: ch.ID, Doc: ch.Doc}
}

func fromWire(w wireChange) docsync.Change {
	return docsync.Change{Kind: docsync.ChangeKind(w.Kind), ID: w.ID, Doc: w.Doc}
}
