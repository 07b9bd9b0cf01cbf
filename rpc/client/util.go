package client

import (
	"github.com/ValentinKolb/dMem/lib/async"
	"github.com/ValentinKolb/dMem/lib/remote"
	"github.com/ValentinKolb/dMem/rpc/common"
)

// invoke sends a request and waits for the response, see invokeAsync
func (m *RPCMemory) invoke(req *common.Message, failCode remote.RetCode) (*common.Message, error) {
	return m.invokeAsync(req, failCode).Wait()
}

// invokeAsync is the helper all requests go through. It serializes req, sends it
// and decodes the response. Errors reported by the server are returned with
// failCode, transport errors keep their own code.
func (m *RPCMemory) invokeAsync(req *common.Message, failCode remote.RetCode) *async.Op[*common.Message] {
	if !m.connected() {
		return async.Failed[*common.Message](remote.NewError(remote.RetCConnError, nil, "not connected"))
	}

	reqBytes, err := m.serializer.Serialize(*req)
	if err != nil {
		return async.Failed[*common.Message](remote.NewError(remote.RetCIOError, err, "failed to serialize %s request", req.MsgType))
	}

	sent := m.transport.SendAsync(m.shardId, reqBytes)
	return async.Then(sent, func(respBytes []byte) (*common.Message, error) {
		resp := &common.Message{}
		if err := m.serializer.Deserialize(respBytes, resp); err != nil {
			return nil, remote.NewError(remote.RetCIOError, err, "failed to deserialize %s response", req.MsgType)
		}

		if resp.MsgType == common.MsgTError || resp.Err != "" {
			return nil, remote.NewError(failCode, nil, "%s rejected by server: %s", req.MsgType, resp.Err)
		}

		if resp.MsgType != req.MsgType {
			return nil, remote.NewError(remote.RetCIOError, nil, "unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
		}

		return resp, nil
	})
}

func (m *RPCMemory) connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endpoint != ""
}
