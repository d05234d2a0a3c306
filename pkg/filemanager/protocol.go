package filemanager

import (
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-apx/pkg/logging"
	"github.com/dd0wney/cluso-apx/pkg/metrics"
	"github.com/dd0wney/cluso-apx/pkg/nodedata"
	"github.com/dd0wney/cluso-apx/pkg/rmf"
)

// ErrInvalidWrite is returned for data written outside an open remote file
var ErrInvalidWrite = errors.New("filemanager: invalid write")

// ParseMessage handles one unframed message received from the peer
func (m *Manager) ParseMessage(data []byte) error {
	msg, err := rmf.ParseMessage(data)
	if err != nil {
		m.recordError("header")
		return err
	}
	m.recordIn(len(data))
	if msg.IsCommand() {
		return m.parseCommand(msg.Payload)
	}
	return m.parseData(msg.Address, msg.More, msg.Payload)
}

func (m *Manager) parseCommand(payload []byte) error {
	cmd, err := rmf.DecodeCommandType(payload)
	if err != nil {
		m.post(message{kind: msgErrorInvalidCmd})
		return err
	}
	switch cmd {
	case rmf.CmdFileInfo:
		info, err := rmf.DecodeFileInfo(payload)
		if err != nil {
			m.post(message{kind: msgErrorInvalidCmd, cmd: cmd})
			return err
		}
		return m.remoteFileInfo(info)
	case rmf.CmdFileOpen, rmf.CmdFileClose, rmf.CmdRevokeFile:
		_, address, err := rmf.DecodeAddressCommand(payload)
		if err != nil {
			m.post(message{kind: msgErrorInvalidCmd, cmd: cmd})
			return err
		}
		switch cmd {
		case rmf.CmdFileOpen:
			return m.localFileOpen(address)
		case rmf.CmdFileClose:
			return m.localFileClose(address)
		default:
			return m.remoteFileRevoke(address)
		}
	case rmf.CmdHeartbeatRqst:
		m.post(message{kind: msgSendCommand, cmd: rmf.CmdHeartbeatRsp})
	case rmf.CmdPingRqst:
		m.post(message{kind: msgSendCommand, cmd: rmf.CmdPingRsp})
	case rmf.CmdAck, rmf.CmdNack, rmf.CmdEOT, rmf.CmdHeartbeatRsp, rmf.CmdPingRsp:
	default:
		m.post(message{kind: msgErrorInvalidCmd, cmd: cmd})
		return fmt.Errorf("%w: %s", rmf.ErrInvalidCommand, cmd)
	}
	return nil
}

func (m *Manager) remoteFileInfo(info *rmf.FileInfo) error {
	if uint64(info.Address)+uint64(info.Length) > uint64(rmf.CmdStartAddress) {
		m.post(message{kind: msgErrorInvalidCmd, cmd: rmf.CmdFileInfo})
		return fmt.Errorf("%w: %s at 0x%08X reaches the command area", rmf.ErrInvalidCommand, info.Name, info.Address)
	}
	kind := nodedata.FileUserData
	if info.Name == EventFileName {
		kind = nodedata.FileEvent
	} else if _, k := nodedata.KindOf(info.Name); k != nodedata.FileUnknown {
		kind = k
	}
	f := NewRemoteFile(kind, info, nil)
	m.mu.Lock()
	err := m.remote.Insert(f)
	m.mu.Unlock()
	if err != nil {
		m.recordError("file_info")
		return err
	}
	m.logger.Debug("remote file created", logging.FileName(f.Name()), logging.Address(f.Address()), logging.Bytes(int(f.Length())))
	m.each(func(l EventListener) { l.FileCreate(m, f) })
	return nil
}

func (m *Manager) findLocal(address uint32) *File {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.local.FindByAddress(address)
	if f == nil || f.Address() != address {
		return nil
	}
	return f
}

func (m *Manager) localFileOpen(address uint32) error {
	f := m.findLocal(address)
	if f == nil {
		m.post(message{kind: msgErrorInvalidCmd, cmd: rmf.CmdFileOpen, address: address})
		return fmt.Errorf("%w: open of local address 0x%08X", ErrFileNotFound, address)
	}
	f.Open()
	m.logger.Debug("local file opened", logging.FileName(f.Name()))
	m.each(func(l EventListener) { l.FileOpen(m, f) })
	if f.Info.FileType == rmf.FileTypeStream {
		return nil
	}
	if !f.HasHandler() {
		m.post(message{kind: msgErrorInvalidReadHandler, file: f})
		return nil
	}
	m.post(message{kind: msgSendFileContent, file: f})
	return nil
}

func (m *Manager) localFileClose(address uint32) error {
	f := m.findLocal(address)
	if f == nil {
		m.post(message{kind: msgErrorInvalidCmd, cmd: rmf.CmdFileClose, address: address})
		return fmt.Errorf("%w: close of local address 0x%08X", ErrFileNotFound, address)
	}
	f.Close()
	m.each(func(l EventListener) { l.FileClose(m, f) })
	return nil
}

func (m *Manager) remoteFileRevoke(address uint32) error {
	m.mu.Lock()
	f := m.remote.FindByAddress(address)
	if f != nil && f.Address() == address {
		m.remote.Remove(f)
	} else {
		f = nil
	}
	m.mu.Unlock()
	if f == nil {
		m.post(message{kind: msgErrorInvalidCmd, cmd: rmf.CmdRevokeFile, address: address})
		return fmt.Errorf("%w: revoke of remote address 0x%08X", ErrFileNotFound, address)
	}
	f.Close()
	m.each(func(l EventListener) { l.FileRevoke(m, f) })
	return nil
}

func (m *Manager) parseData(address uint32, more bool, payload []byte) error {
	if m.pending != nil {
		p := m.pending
		if address != p.address+uint32(len(p.data)) {
			m.pending = nil
			m.post(message{kind: msgErrorInvalidWrite, address: address})
			return fmt.Errorf("%w: fragment at 0x%08X does not continue 0x%08X", ErrInvalidWrite, address, p.address)
		}
		p.data = append(p.data, payload...)
		if more {
			return nil
		}
		m.pending = nil
		return m.remoteWrite(p.address, p.data)
	}
	if more {
		m.pending = &pendingWrite{address: address, data: append([]byte(nil), payload...)}
		return nil
	}
	return m.remoteWrite(address, payload)
}

func (m *Manager) remoteWrite(address uint32, data []byte) error {
	m.mu.Lock()
	f := m.remote.FindByAddress(address)
	m.mu.Unlock()
	if f == nil {
		m.post(message{kind: msgErrorInvalidWrite, address: address})
		return fmt.Errorf("%w: no remote file at 0x%08X", ErrInvalidWrite, address)
	}
	offset := address - f.Address()
	if f.Info.FileType != rmf.FileTypeStream && uint64(offset)+uint64(len(data)) > uint64(f.Length()) {
		m.post(message{kind: msgErrorInvalidWrite, address: address})
		return fmt.Errorf("%w: %d bytes at offset %d exceed %s", ErrInvalidWrite, len(data), offset, f.Name())
	}
	if !f.IsOpen() {
		m.logger.Debug("write to closed remote file dropped", logging.FileName(f.Name()))
		return nil
	}
	if f.HasHandler() {
		if err := f.Write(data, offset); err != nil {
			m.recordError("write")
			return fmt.Errorf("failed to write %s: %w", f.Name(), err)
		}
	}
	m.each(func(l EventListener) { l.FileWrite(m, f, offset, data) })
	return nil
}

func (m *Manager) worker() {
	defer close(m.done)
	for msg := range m.queue {
		if msg.kind == msgExit {
			return
		}
		if err := m.process(msg); err != nil {
			m.recordError("send")
			m.logger.Warn("send failed", logging.Error(err))
		}
	}
}

func (m *Manager) process(msg message) error {
	switch msg.kind {
	case msgSendAck:
		return m.send(rmf.AckMessage())
	case msgSendFileInfo:
		out, err := rmf.FileInfoMessage(&msg.file.Info)
		if err != nil {
			return err
		}
		m.each(func(l EventListener) { l.SendFileInfo(m, msg.file) })
		return m.send(out)
	case msgSendFileOpen:
		return m.send(rmf.CommandMessage(rmf.EncodeAddressCommand(rmf.CmdFileOpen, msg.address)))
	case msgSendFileClose:
		return m.send(rmf.CommandMessage(rmf.EncodeAddressCommand(rmf.CmdFileClose, msg.address)))
	case msgSendCommand:
		if msg.cmd == rmf.CmdRevokeFile {
			return m.send(rmf.CommandMessage(rmf.EncodeAddressCommand(msg.cmd, msg.address)))
		}
		return m.send(rmf.CommandMessage(rmf.EncodeCommand(msg.cmd)))
	case msgSendFileContent:
		content := make([]byte, msg.file.Length())
		if err := msg.file.Read(content, 0); err != nil {
			return fmt.Errorf("failed to read %s: %w", msg.file.Name(), err)
		}
		return m.sendData(msg.file.Address(), content)
	case msgWriteFile:
		// accepted while the file was open; a later close does not cancel it
		return m.sendData(msg.file.Address()+msg.offset, msg.data)
	case msgErrorInvalidCmd:
		m.recordError("invalid_command")
		m.logger.Warn("invalid command", logging.String("command", msg.cmd.String()), logging.Address(msg.address))
	case msgErrorInvalidWrite:
		m.recordError("invalid_write")
		m.logger.Warn("invalid write", logging.Address(msg.address))
	case msgErrorInvalidReadHandler:
		m.recordError("invalid_read_handler")
		m.logger.Warn("opened file has no read handler", logging.FileName(msg.file.Name()))
	}
	return nil
}

// sendData sends data at address, split into fragments with the more
// flag set on all but the last.
func (m *Manager) sendData(address uint32, data []byte) error {
	for start := 0; start < len(data) || start == 0; start += m.fragLen {
		end := min(start+m.fragLen, len(data))
		out := &rmf.Message{Address: address + uint32(start), More: end < len(data), Payload: data[start:end]}
		encoded, err := out.Encode()
		if err != nil {
			return err
		}
		if err := m.send(encoded); err != nil {
			return err
		}
		if end == len(data) {
			break
		}
	}
	return nil
}

func (m *Manager) send(msg []byte) error {
	if err := m.tx.Send(msg); err != nil {
		return err
	}
	if m.metrics != nil {
		m.metrics.RecordMessage(metrics.DirectionOut, len(msg))
	}
	return nil
}

func (m *Manager) recordIn(n int) {
	if m.metrics != nil {
		m.metrics.RecordMessage(metrics.DirectionIn, n)
	}
}

func (m *Manager) recordError(kind string) {
	if m.metrics != nil {
		m.metrics.RecordProtocolError(kind)
	}
}
