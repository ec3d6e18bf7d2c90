package page

import (
	"context"
	"strconv"
	"strings"
	"time"

	"emperror.dev/errors"
	"github.com/apex/log"
	"github.com/buger/jsonparser"

	"github.com/dockpage/dockpage/collector"
	"github.com/dockpage/dockpage/remote"
)

// Sentinel is the marker string rendered into every stats block so that
// blocks created by this process can be told apart from anything else on the
// page. Do not change it casually, orphaned blocks written by older versions
// would stop being cleaned up.
const Sentinel = "dockpage:auto-generated"

const (
	// The number of direct page children inspected during startup
	// reconciliation. Anything beyond the first page of results is ignored,
	// the scan only needs to find the single leftover from the previous run.
	reconcileScanLimit = 100
	// The number of nested children inspected per candidate quote block.
	reconcileChildLimit = 20
)

// Synchronizer owns the lifecycle of the stats block on the destination
// page. There is exactly one writer of its state: cycles are serialized by
// the scheduler, so no locking is required around the block handle.
type Synchronizer struct {
	client remote.Client
	pageID string

	// The identifier of the block created by the previous cycle. Empty when
	// no block is known to exist. The block it points at was created by this
	// process and is always safe to delete.
	lastBlock string
}

func New(client remote.Client, pageID string) *Synchronizer {
	return &Synchronizer{client: client, pageID: pageID}
}

// Sync converges the destination page onto the provided stats: the block
// created by the previous cycle is deleted, a fresh one is rendered and
// appended, and its identity is remembered for the next cycle. Safe to call
// repeatedly, every call is a full convergence pass rather than a diff.
func (s *Synchronizer) Sync(ctx context.Context, stats []collector.ContainerStat) error {
	if s.lastBlock != "" {
		// Clear the handle before attempting the delete: a failure here means
		// the block is treated as already gone rather than retried forever.
		id := s.lastBlock
		s.lastBlock = ""
		if err := s.client.DeleteBlock(ctx, id); err != nil {
			log.WithFields(log.Fields{
				"block": id,
				"error": err,
			}).Warn("page: failed to delete previous stats block, assuming it is already gone")
		}
	}

	res, err := s.client.AppendBlockChildren(ctx, s.pageID, []remote.Block{Render(stats, time.Now())})
	if err != nil {
		return errors.WrapIf(err, "page: failed to append stats block")
	}
	if len(res.Results) == 0 {
		return errors.New("page: append response did not include any created blocks")
	}
	id, err := jsonparser.GetString(res.Results[0], "id")
	if err != nil {
		return errors.Wrap(err, "page: could not read created block id from response")
	}
	s.lastBlock = id

	return nil
}

// Reconcile scans the first page of the destination's children for stats
// blocks left behind by a previous process and deletes them. This runs once
// at boot, before any cycle, to recover ownership after a restart where the
// in-memory handle was lost. The scan is bounded and best-effort: a leftover
// buried past the first page of children is not found.
func (s *Synchronizer) Reconcile(ctx context.Context) error {
	list, err := s.client.GetBlockChildren(ctx, s.pageID, reconcileScanLimit)
	if err != nil {
		return errors.WrapIf(err, "page: failed to list page children for reconciliation")
	}

	for _, raw := range list.Results {
		typ, _ := jsonparser.GetString(raw, "type")
		hasChildren, _ := jsonparser.GetBoolean(raw, "has_children")
		if typ != "quote" || !hasChildren {
			continue
		}
		id, err := jsonparser.GetString(raw, "id")
		if err != nil {
			continue
		}

		children, err := s.client.GetBlockChildren(ctx, id, reconcileChildLimit)
		if err != nil {
			log.WithFields(log.Fields{
				"block": id,
				"error": err,
			}).Warn("page: failed to inspect quote block children during reconciliation")
			continue
		}

		for _, child := range children.Results {
			if !containsSentinel(child) {
				continue
			}
			log.WithField("block", id).Info("page: removing orphaned stats block from previous run")
			if err := s.client.DeleteBlock(ctx, id); err != nil {
				log.WithFields(log.Fields{
					"block": id,
					"error": err,
				}).Warn("page: failed to delete orphaned stats block")
			}
			break
		}
	}

	return nil
}

// containsSentinel reports whether the raw block JSON is a paragraph whose
// rich text contains the sentinel marker. Listed blocks are polymorphic so
// the probe works on raw bytes rather than a typed model.
func containsSentinel(raw []byte) bool {
	found := false
	_, _ = jsonparser.ArrayEach(raw, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		if found {
			return
		}
		if t, err := jsonparser.GetString(value, "plain_text"); err == nil && strings.Contains(t, Sentinel) {
			found = true
			return
		}
		// Fall back to the write-side shape in case plain_text is absent.
		if t, err := jsonparser.GetString(value, "text", "content"); err == nil && strings.Contains(t, Sentinel) {
			found = true
		}
	}, "paragraph", "rich_text")
	return found
}

// Render builds the block tree for one cycle: a single quote block titled in
// bold, containing the refresh timestamp, the stats table and the sentinel
// marker line.
func Render(stats []collector.ContainerStat, now time.Time) remote.Block {
	rows := make([]remote.Block, 0, len(stats)+1)
	rows = append(rows, remote.NewTableRow("Container", "CPU (%)", "RAM (MB)"))
	for _, st := range stats {
		rows = append(rows, remote.NewTableRow(
			st.Name,
			strconv.FormatFloat(st.CPUPercent, 'f', 2, 64),
			strconv.FormatFloat(st.MemoryMB, 'f', 2, 64),
		))
	}

	return remote.NewQuote(
		[]remote.RichText{remote.BoldText("Container stats")},
		remote.NewParagraph(remote.Text("Updated: "+now.UTC().Format(time.RFC3339))),
		remote.NewTable(3, rows...),
		remote.NewParagraph(remote.MutedText(Sentinel)),
	)
}
