package keystore

// Lifecycle is the applet's personalization state machine (spec.md §4.9,
// §6 fs_set_lifecycle), supplemented per SPEC_FULL.md §3 since spec.md
// names ACTIVATE APPLET and the PUT DATA init sub-operations without
// shaping the transition itself.
type Lifecycle byte

const (
	LifecycleUninitialized Lifecycle = iota
	LifecyclePersonalization
	LifecycleOperational
)

// fileRecord is the gorm-backed row for one addressable file (spec.md §3
// file taxonomy + §4.9 GET DATA 0xA1-0xA6/0xAC).
type fileRecord struct {
	ID              uint16 `gorm:"primaryKey"`
	Type            byte
	SizeBits        int
	AccessCondition byte
}

func (fileRecord) TableName() string { return "files" }

// pinRecord is the gorm-backed row for one PIN reference (spec.md §4.9
// GET DATA 0xB0-0xBF, PUT DATA 0x01-0x0E).
type pinRecord struct {
	Ref         byte `gorm:"primaryKey"`
	Initialized bool
	TriesLeft   int
	MaxTries    int
}

func (pinRecord) TableName() string { return "pins" }

// lifecycleRecord is a single-row table holding the applet's lifecycle
// state, persisted across sessions. The card identity is kept in
// card-id.hex, not in this table.
type lifecycleRecord struct {
	ID    uint `gorm:"primaryKey"`
	State byte
}

func (lifecycleRecord) TableName() string { return "lifecycle" }
