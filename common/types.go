package common

// VersionResult is the response for system.getVersion.
type VersionResult struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}

// ScheduleParams are the properties of a new entry. Absent fields take
// their defaults: priority 0, not resumable.
type ScheduleParams struct {
	Priority  *uint32 `json:"priority,omitempty"`
	Resumable *bool   `json:"resumable,omitempty"`
}

type ScheduleResult struct {
	ID string `json:"id"`
}

type ScheduleEntriesParams struct {
	Entries []ScheduleParams `json:"entries"`
}

type ScheduleEntriesResult struct {
	IDs []string `json:"ids"`
}

// EntryIDParams names one entry.
type EntryIDParams struct {
	ID string `json:"id"`
}

// SetEntryParams changes an entry's properties; nil fields are kept.
type SetEntryParams struct {
	ID        string  `json:"id"`
	Priority  *uint32 `json:"priority,omitempty"`
	Resumable *bool   `json:"resumable,omitempty"`
}

// EntryInfo describes an entry, and is the payload of
// entry.propertiesChanged.
type EntryInfo struct {
	ID          string `json:"id"`
	Priority    uint32 `json:"priority"`
	Resumable   bool   `json:"resumable"`
	DownloadNow bool   `json:"downloadNow"`
	// Removed is set in the notification sent when the entry is gone.
	Removed bool `json:"removed,omitempty"`
}

// SchedulerProperties is the response for scheduler.getProperties and
// the payload of scheduler.propertiesChanged.
type SchedulerProperties struct {
	EntryCount       int  `json:"entryCount"`
	ActiveEntryCount int  `json:"activeEntryCount"`
	MaxEntries       int  `json:"maxEntries"`
	DownloadsAllowed bool `json:"downloadsAllowed"`
}

type HoldParams struct {
	Reason string `json:"reason,omitempty"`
}

type HoldResult struct {
	Token string `json:"token"`
}

type ReleaseParams struct {
	Token string `json:"token"`
}

// EmptyResult is a placeholder for methods that return no data.
type EmptyResult struct{}
