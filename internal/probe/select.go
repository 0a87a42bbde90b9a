package probe

import "github.com/latentloop/diskindex/internal/model"

// blockAccounting mirrors the platform's hasBlockAccounting const in a
// package var so tests can force the local-subprocess fallback path
// without a build tag.
var blockAccounting = hasBlockAccounting

// Select picks the probe strategy for uri among local-native,
// local-subprocess, and object-store. local-native is preferred
// wherever block-accurate sizing is available, falling back to
// local-subprocess on platforms that lack it; lister is consulted
// only for object URIs and may be nil when the caller never scans
// object roots.
func Select(uri string, lister ObjectLister) Source {
	if model.SchemeOf(uri) == model.SchemeObject {
		return Object{Lister: lister}
	}
	if !blockAccounting {
		return LocalSubprocess{}
	}
	return LocalNative{}
}
