package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/dMem/lib/memstore"
	"github.com/ValentinKolb/dMem/rpc/common"
)

// NewMemoryServerAdapter creates the adapter serving alloc, free, read, write and stats
// requests. Every operation is timed in stats.
func NewMemoryServerAdapter(stats *ShardStats) IRPCServerAdapter {
	return &memoryServerAdapter{stats: stats}
}

type memoryServerAdapter struct {
	stats *ShardStats
}

func (adapter *memoryServerAdapter) Handle(req *common.Message, pool *memstore.Pool) *common.Message {
	if pool == nil {
		return common.NewErrorResponse("handler: pool is nil")
	}

	start := time.Now()
	var resp *common.Message

	switch req.MsgType {
	case common.MsgTMemAlloc:
		addr, key, err := pool.Allocate(req.Size)
		resp = common.NewAllocResponse(addr, key, err)
	case common.MsgTMemFree:
		err := pool.Free(req.Addr, req.Key)
		resp = common.NewFreeResponse(err)
	case common.MsgTMemRead:
		value, err := pool.Read(req.Addr, req.Key, req.Offset, req.Size)
		resp = common.NewReadResponse(value, err)
		if err == nil {
			adapter.stats.bytesRead.Mark(int64(len(value)))
		}
	case common.MsgTMemWrite:
		var n uint64
		err := pool.Write(req.Addr, req.Key, req.Offset, req.Value)
		if err == nil {
			n = uint64(len(req.Value))
			adapter.stats.bytesWritten.Mark(int64(n))
		}
		resp = common.NewWriteResponse(n, err)
	case common.MsgTMemStats:
		meta, err := json.Marshal(adapter.stats.Snapshot(pool))
		resp = common.NewStatsResponse(meta, err)
	default:
		adapter.stats.errors.Inc(1)
		return common.NewErrorResponse(fmt.Sprintf("RPC MemoryAdapter - Unsupported message type: %s", req.MsgType))
	}

	adapter.stats.observe(req.MsgType, start, resp.Err != "")
	return resp
}
