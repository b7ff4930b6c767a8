package sqlrel

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/orcabus/filemanager/internal/types"
)

func s(v string) *string { return &v }

func row(id, versionID string, eventType types.EventType, sequencer *string, isDeleteMarker bool) *types.S3Object {
	return &types.S3Object{
		ID:             uuid.MustParse(id),
		Bucket:         "bucket",
		Key:            "key",
		VersionID:      versionID,
		EventType:      eventType,
		Sequencer:      sequencer,
		IsDeleteMarker: isDeleteMarker,
	}
}

const (
	v1 = "00000000-0000-0000-0000-000000000001"
	v2 = "00000000-0000-0000-0000-000000000002"
	v3 = "00000000-0000-0000-0000-000000000003"
	v4 = "00000000-0000-0000-0000-000000000004"
	v5 = "00000000-0000-0000-0000-000000000005"
	v6 = "00000000-0000-0000-0000-000000000006"
)

// TestComputeCurrentStateIDSeedScenarios walks one identity through a
// full lifecycle step by step: uploads, permanent deletes, a delete
// marker, an upload over the marker, and deletion down to an empty live
// set.
func TestComputeCurrentStateIDSeedScenarios(t *testing.T) {
	// 1. Created(V=1,s=1), Created(V=2,s=2), Created(V=3,s=3) -> V=3 current.
	rows := []*types.S3Object{
		row(v1, "V1", types.EventCreated, s("s1"), false),
		row(v2, "V2", types.EventCreated, s("s2"), false),
		row(v3, "V3", types.EventCreated, s("s3"), false),
	}
	assert.Equal(t, v3, computeCurrentStateID(rows))

	// 2. Deleted(V=2, s=4, marker=false) -> V3 still current.
	rows = append(rows, row(v4, "V2", types.EventDeleted, s("s4"), false))
	assert.Equal(t, v3, computeCurrentStateID(rows))

	// 3. Deleted(V=4, s=5, marker=true) then Created(V=5, s=6) -> V5 current.
	rows = append(rows,
		row(v5, "V4", types.EventDeleted, s("s5"), true),
		row(v6, "V5", types.EventCreated, s("s6"), false),
	)
	assert.Equal(t, v6, computeCurrentStateID(rows))

	// 4. Deleted(V=5, s=7, marker=false) -> delete marker V4 becomes current.
	idStep4 := "00000000-0000-0000-0000-000000000007"
	rows = append(rows, row(idStep4, "V5", types.EventDeleted, s("s7"), false))
	assert.Equal(t, v5, computeCurrentStateID(rows)) // the V4 delete-marker row's id is v5

	// 5. Deleted(V=4, s=8, marker=false) then Deleted(V=3, s=9, marker=false) -> V1 current.
	idStep5a := "00000000-0000-0000-0000-000000000008"
	idStep5b := "00000000-0000-0000-0000-000000000009"
	rows = append(rows,
		row(idStep5a, "V4", types.EventDeleted, s("s8"), false),
		row(idStep5b, "V3", types.EventDeleted, s("s9"), false),
	)
	assert.Equal(t, v1, computeCurrentStateID(rows))

	// 6. Deleted(V=1, s=99, marker=false) -> no current row.
	idStep6 := "10000000-0000-0000-0000-000000000001"
	rows = append(rows, row(idStep6, "V1", types.EventDeleted, s("s99"), false))
	assert.Equal(t, "", computeCurrentStateID(rows))
}

func TestComputeCurrentStateIDEmptyWhenNoLiveVersions(t *testing.T) {
	rows := []*types.S3Object{
		row(v1, "V1", types.EventDeleted, s("s1"), false),
	}
	assert.Equal(t, "", computeCurrentStateID(rows))
}

func TestComputeCurrentStateIDDeleteMarkerIsLiveVersion(t *testing.T) {
	rows := []*types.S3Object{
		row(v1, "V1", types.EventDeleted, s("s1"), true),
	}
	assert.Equal(t, v1, computeCurrentStateID(rows))
}
