// Package sitecrawl provides a resumable, polite crawler for a single web
// domain. It discovers links transitively from a seed path, fetches each
// discovered URL exactly once, and hands fetched pages to pluggable
// extractors that persist domain data and surface more links to follow.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, http/, goquery/).
package sitecrawl

import "log/slog"

// LevelTrace is the most verbose log tier. The scheduler logs queueing and
// rate throttling at this level.
const LevelTrace = slog.Level(-8)
