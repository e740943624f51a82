package prefix

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// EncodeTenantPrefix builds "<basePrefix>/<base64(tenantID)>/" with any trailing
// slashes of basePrefix collapsed into the single separator.
func EncodeTenantPrefix(basePrefix string, tenantID int64) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(strconv.FormatInt(tenantID, 10)))
	return strings.TrimRight(basePrefix, "/") + "/" + encoded + "/"
}

// DecodeTenantPrefix recovers the tenant identifier from the last segment of a
// prefix produced by EncodeTenantPrefix.
func DecodeTenantPrefix(prefix string) (int64, error) {
	trimmed := strings.TrimRight(prefix, "/")
	segment := trimmed[strings.LastIndex(trimmed, "/")+1:]
	if segment == "" {
		return 0, fmt.Errorf("prefix %q has no tenant segment", prefix)
	}

	raw, err := base64.StdEncoding.DecodeString(segment)
	if err != nil {
		return 0, fmt.Errorf("decode tenant segment %q: %w", segment, err)
	}

	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("tenant segment %q is not an identifier: %w", segment, err)
	}
	return id, nil
}
