package nodemanager

import (
	"errors"

	"github.com/dd0wney/cluso-apx/pkg/apx"
	"github.com/dd0wney/cluso-apx/pkg/filemanager"
	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/router"
)

// serverListener builds remote nodes from the files of one client
type serverListener struct {
	filemanager.NopListener
	m    *Manager
	conn *connection
}

func (l *serverListener) node(name string) *remoteNode {
	l.m.mu.Lock()
	defer l.m.mu.Unlock()
	rn, ok := l.conn.nodes[name]
	if !ok {
		rn = &remoteNode{}
		l.conn.nodes[name] = rn
	}
	return rn
}

func (l *serverListener) FileCreate(fm *filemanager.Manager, f *filemanager.File) {
	base, _ := nodedata.KindOf(f.Name())
	switch f.Kind {
	case nodedata.FileDefinition:
		rn := l.node(base)
		nd := nodedata.New(base, int(f.Length()), true)
		l.m.mu.Lock()
		rn.data = nd
		rn.defFile = f
		l.m.mu.Unlock()
		f.SetHandler(filemanager.NodeDataHandler{Data: nd})
		if err := fm.OpenRemoteFile(f.Address()); err != nil {
			l.m.logger.Warn("failed to open definition", logging.FileName(f.Name()), logging.Error(err))
		}
	case nodedata.FileOutData:
		rn := l.node(base)
		l.m.mu.Lock()
		rn.outFile = f
		ready := rn.info != nil
		l.m.mu.Unlock()
		if ready {
			l.openOutData(fm, rn)
		}
	default:
		l.m.logger.Info("unsupported file", logging.FileName(f.Name()), logging.ConnectionID(fm.ID()))
	}
}

func (l *serverListener) FileRevoke(fm *filemanager.Manager, f *filemanager.File) {
	if f.Kind != nodedata.FileDefinition {
		return
	}
	base, _ := nodedata.KindOf(f.Name())
	l.m.mu.Lock()
	rn, ok := l.conn.nodes[base]
	if ok {
		delete(l.conn.nodes, base)
	}
	l.m.mu.Unlock()
	if !ok || rn.info == nil {
		return
	}
	if rn.inFile != nil {
		if err := fm.RevokeLocalFile(rn.inFile); err != nil {
			l.m.logger.Debug("failed to revoke in data file", logging.FileName(rn.inFile.Name()), logging.Error(err))
		}
	}
	l.m.router.Detach(rn.info)
	l.m.each(func(nl NodeListener) { nl.NodeDetached(fm.ID(), rn.info) })
}

func (l *serverListener) FileWrite(fm *filemanager.Manager, f *filemanager.File, offset uint32, data []byte) {
	if f.Kind != nodedata.FileDefinition || uint64(offset)+uint64(len(data)) != uint64(f.Length()) {
		return
	}
	base, _ := nodedata.KindOf(f.Name())
	rn := l.node(base)
	if rn.data == nil || rn.info != nil {
		return
	}
	l.createNode(fm, rn)
}

// createNode parses a received definition and connects the node
func (l *serverListener) createNode(fm *filemanager.Manager, rn *remoteNode) {
	nd := rn.data
	if err := l.m.factory.ParseDefinition(nd); err != nil {
		l.m.logger.Error("invalid definition",
			logging.NodeName(nd.Name()),
			logging.ConnectionID(fm.ID()),
			logging.Int("line", apx.LineOf(err)),
			logging.String("detail", apx.DetailOf(err)),
			logging.Error(err))
		if l.m.metrics != nil {
			l.m.metrics.RecordDefinition("error")
		}
		l.m.each(func(nl NodeListener) { nl.DefinitionError(fm.ID(), nd.Name(), err) })
		return
	}
	if l.m.metrics != nil {
		l.m.metrics.RecordDefinition("ok")
	}
	l.m.recordDefinition(fm.ID(), nd)

	info, err := router.NewNodeInfo(nd, fm.ID())
	if err != nil {
		l.m.logger.Error("failed to create node info", logging.NodeName(nd.Name()), logging.Error(err))
		return
	}
	h := &remoteHandler{m: l.m, fm: fm, node: rn}
	l.m.mu.Lock()
	rn.info = info
	l.m.mu.Unlock()
	nd.SetHandler(h)

	if err := l.m.router.Attach(info); err != nil {
		l.m.logger.Warn("failed to copy provider values", logging.NodeName(nd.Name()), logging.Error(err))
	}

	if nd.InPortDataLen() > 0 {
		fi, err := nd.FileInfo(nodedata.FileInData)
		if err == nil {
			in := filemanager.NewLocalFile(nodedata.FileInData, fi, filemanager.NodeDataHandler{Data: nd})
			if err = fm.AttachLocalFile(in); err == nil {
				l.m.mu.Lock()
				rn.inFile = in
				l.m.mu.Unlock()
			}
		}
		if err != nil {
			l.m.logger.Error("failed to attach in data file", logging.NodeName(nd.Name()), logging.Error(err))
		}
	}

	l.m.mu.Lock()
	hasOut := rn.outFile != nil
	l.m.mu.Unlock()
	if hasOut {
		l.openOutData(fm, rn)
	}

	l.m.logger.Info("node attached",
		logging.NodeName(nd.Name()),
		logging.ConnectionID(fm.ID()),
		logging.Int("provide_ports", len(info.Node.ProvidePorts)),
		logging.Int("require_ports", len(info.Node.RequirePorts)))
	l.m.each(func(nl NodeListener) { nl.NodeAttached(fm.ID(), info) })
}

// openOutData opens the out data file once the node is parsed
func (l *serverListener) openOutData(fm *filemanager.Manager, rn *remoteNode) {
	l.m.mu.Lock()
	f, nd := rn.outFile, rn.data
	l.m.mu.Unlock()
	if int(f.Length()) != nd.OutPortDataLen() {
		l.m.logger.Error("out data file length mismatch",
			logging.FileName(f.Name()), logging.Bytes(int(f.Length())), logging.Int("expected", nd.OutPortDataLen()))
		return
	}
	f.SetHandler(filemanager.NodeDataHandler{Data: nd})
	if err := fm.OpenRemoteFile(f.Address()); err != nil {
		l.m.logger.Warn("failed to open out data file", logging.FileName(f.Name()), logging.Error(err))
	}
}

// remoteHandler routes writes into a remote node's out data and forwards
// routed require port data to its in data file.
type remoteHandler struct {
	m    *Manager
	fm   *filemanager.Manager
	node *remoteNode
}

func (h *remoteHandler) OutPortDataWritten(nd *nodedata.NodeData, offset, length int) {
	h.m.mu.Lock()
	info := h.node.info
	h.m.mu.Unlock()
	if err := h.m.router.RouteOutPortWrite(info, offset, length); err != nil {
		h.m.logger.Warn("failed to route write", logging.NodeName(nd.Name()), logging.Error(err))
	}
}

func (h *remoteHandler) InPortDataWritten(nd *nodedata.NodeData, offset, length int) {
	h.m.mu.Lock()
	in := h.node.inFile
	h.m.mu.Unlock()
	if in == nil || !in.IsOpen() {
		return
	}
	data := make([]byte, length)
	if err := nd.ReadInPortData(data, offset); err != nil {
		h.m.logger.Warn("failed to read in data", logging.NodeName(nd.Name()), logging.Error(err))
		return
	}
	if err := h.fm.WriteLocalFile(in, uint32(offset), data); err != nil && !errors.Is(err, filemanager.ErrFileNotOpen) {
		h.m.logger.Warn("failed to send in data", logging.NodeName(nd.Name()), logging.Error(err))
	}
}
