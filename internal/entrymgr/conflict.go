package entrymgr

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lansync/lansyncd/internal/version"
)

// conflictDecision applies the deterministic conflict policy table to a
// pair of records whose version vectors are not comparable. It performs
// no I/O and never writes a conflict artifact; callers that need the
// artifact side effect use resolveConflict instead.
func conflictDecision(local, peer *Record, localID, peerID uuid.UUID) version.Comparison {
	switch {
	case local.IsTombstone() && !peer.IsTombstone():
		return version.KeepOther
	case !local.IsTombstone() && peer.IsTombstone():
		return version.KeepSelf
	case local.IsTombstone() && peer.IsTombstone():
		return version.Equal
	case localID.String() < peerID.String():
		return version.KeepSelf
	case local.Kind == KindDirectory:
		return version.KeepOther
	default:
		// Both live, local_id > peer_id, local is a regular file: the
		// caller must preserve local's content as a conflict artifact
		// before the peer's copy wins.
		return version.KeepOther
	}
}

// resolveConflict applies conflictDecision and, when the policy table
// calls for it, copies localPath aside as a conflict artifact before the
// peer's copy is allowed to win. localPath is the canonical filesystem
// path of the local entry.
func resolveConflict(local, peer *Record, localID, peerID uuid.UUID, localPath string) (version.Comparison, error) {
	decision := conflictDecision(local, peer, localID, peerID)

	needsArtifact := decision == version.KeepOther &&
		!local.IsTombstone() && !peer.IsTombstone() &&
		localID.String() > peerID.String() &&
		local.Kind != KindDirectory

	if needsArtifact {
		if err := writeConflictArtifact(localPath, localID); err != nil {
			return version.Equal, err
		}
	}

	return decision, nil
}

// writeConflictArtifact copies localPath to a sibling file named
// "{stem}_CONFLICT_{unix_seconds}_{local_id}.{ext}", preserving the
// content of the side that lost the deterministic tie-break.
func writeConflictArtifact(localPath string, localID uuid.UUID) error {
	src, err := os.Open(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("entrymgr: opening %s for conflict artifact: %w", localPath, err)
	}
	defer src.Close()

	stem, ext := stemAndExt(filepath.Base(localPath))
	artifactName := fmt.Sprintf("%s_CONFLICT_%d_%s%s", stem, time.Now().Unix(), localID, ext)
	artifactPath := filepath.Join(filepath.Dir(localPath), artifactName)

	dst, err := os.OpenFile(artifactPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("entrymgr: creating conflict artifact %s: %w", artifactPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("entrymgr: writing conflict artifact %s: %w", artifactPath, err)
	}

	return nil
}

// stemAndExt splits a base filename into its stem and extension (including
// the leading dot, or empty if there is none). A leading dot on an
// otherwise-extensionless dotfile (".gitignore") is not treated as an
// extension separator.
func stemAndExt(base string) (stem, ext string) {
	idx := strings.LastIndexByte(base, '.')
	if idx <= 0 {
		return base, ""
	}

	return base[:idx], base[idx:]
}
