// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package sqlguard

import (
	"crypto/sha256"
	"encoding/hex"
)

// DeriveStatementID builds the standardized statementId:
// {hostTag}:{datasource}:{shortHash(sql)}. Identical call sites (same host
// tag, datasource, and normalized SQL) always produce the same id, which
// downstream aggregation in the audit pipeline depends on.
func DeriveStatementID(layer ExecutionLayer, datasource, sql string) string {
	tag := string(layer)
	if tag == "" {
		tag = string(LayerUnknown)
	}
	return tag + ":" + datasource + ":" + ShortHash(sql)
}

// ShortHash returns a stable, truncated hex digest of the normalized SQL
// text. It backs both sqlHash (SqlContext/AuditEvent correlation) and the
// statementId's call-site fingerprint.
func ShortHash(sql string) string {
	sum := sha256.Sum256([]byte(NormalizeSQL(sql)))
	return hex.EncodeToString(sum[:8])
}

// CompatStatementID reproduces the legacy two-field form some call sites
// predate (no datasource segment), for importing historical identifiers.
// No code in this module calls it; live adapters always use
// DeriveStatementID.
func CompatStatementID(layer ExecutionLayer, sql string) string {
	tag := string(layer)
	if tag == "" {
		tag = string(LayerUnknown)
	}
	return tag + ":" + ShortHash(sql)
}
