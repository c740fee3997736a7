package progress

// Merge reconciles a freshly loaded remote snapshot into local state. Mode and
// total come from the remote snapshot only when it carries them; the item
// mapping is the union of both sides, and for a key present in both the remote
// entry replaces the local one outright. The replacement is deliberately
// wholesale, not field-by-field: a remote {rag:green} discards a local
// {checkbox:true} for the same key, favouring the most recently synced device.
func Merge(local, remote SubjectState) SubjectState {
	merged := local.Clone()
	if remote.Mode != "" {
		merged.Mode = remote.Mode
	}
	if remote.Total != 0 {
		merged.Total = remote.Total
	}
	if remote.UpdatedAt != "" {
		merged.UpdatedAt = remote.UpdatedAt
	}
	if remote.Filter != "" {
		merged.Filter = remote.Filter
	}
	for key, entry := range remote.Items {
		merged.Items[key] = entry
	}
	return merged
}

// MergeDocument applies Merge independently for every subject the remote
// document knows about. Subjects present only remotely are adopted as-is;
// subjects present only locally are left untouched and stay out of the result
// until their own session flushes them. resolve supplies the local snapshot
// for a subject, typically live in-memory state first then the local store.
func MergeDocument(doc RemoteDocument, activeSubject string, resolve SnapshotResolver) map[string]SubjectState {
	merged := map[string]SubjectState{}
	for subjectID, remoteSnapshot := range doc.SubjectSnapshots(activeSubject) {
		local, ok := resolve(subjectID)
		if !ok {
			merged[subjectID] = remoteSnapshot.Clone()
			continue
		}
		merged[subjectID] = Merge(local, remoteSnapshot)
	}
	return merged
}
