package hub

import (
	"context"
	"time"

	"github.com/nodoproject/nodo-core/internal/registry"
)

// persistOp is one unit of write-behind work. Exactly one field is set.
type persistOp struct {
	save   *registry.Identity
	remove *uint32
	cursor *uint64
}

const persistTimeout = 5 * time.Second

// runPersister drains persistence work off the loop goroutine so a slow
// disk never stalls frame processing. Failures are logged and dropped:
// identities are re-saved on the next discovery announcement and the
// cursor on the next gateway acknowledgement, so a lost write heals
// itself.
func (c *Controller) runPersister(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case op := <-c.persist:
			opCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			switch {
			case op.save != nil:
				if err := c.store.SaveIdentity(opCtx, *op.save); err != nil {
					c.log.Error("identity save failed", "device_id", op.save.ID, "error", err)
				}
			case op.remove != nil:
				if err := c.store.DeleteIdentity(opCtx, *op.remove); err != nil {
					c.log.Error("identity delete failed", "device_id", *op.remove, "error", err)
				}
			case op.cursor != nil:
				if err := c.store.SaveCursor(opCtx, *op.cursor); err != nil {
					c.log.Error("cursor save failed", "cursor", *op.cursor, "error", err)
				}
			}
			cancel()
		}
	}
}

// enqueuePersist hands work to the persister without ever blocking the
// loop. A full queue drops the op; see runPersister on why that is safe.
func (c *Controller) enqueuePersist(op persistOp) {
	if c.store == nil {
		return
	}
	select {
	case c.persist <- op:
	default:
		c.log.Warn("persist queue full, write dropped")
	}
}

func (c *Controller) persistIdentity(ident registry.Identity) {
	c.enqueuePersist(persistOp{save: &ident})
}

func (c *Controller) persistRemoval(deviceID uint32) {
	id := deviceID
	c.enqueuePersist(persistOp{remove: &id})
}

func (c *Controller) persistCursor(upTo uint64) {
	cur := upTo
	c.enqueuePersist(persistOp{cursor: &cur})
}
