/*
	bridge-fwuploader
	Copyright (c) 2024 The bridge-fwuploader Authors.  All right reserved.

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU Affero General Public License as published
	by the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU Affero General Public License for more details.

	You should have received a copy of the GNU Affero General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package flasher

import (
	"bytes"
	"encoding/binary"

	"github.com/bridgeflash/bridge-fwuploader/firmware"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

const (
	blockBaudRate = 115200

	// block mode, signature and info commands
	handshakeWrites = 3

	blockHelloAck      = 0xF6
	blockModeCommand   = 'b'
	blockModeAccept    = 'Y'
	signatureCommand   = 's'
	infoCommand        = 'I'
	addressCommand     = 'A'
	dataCommand        = 'B'
	dataFrameSeparator = 'F'
	exitCommand        = 'E'
	addressAck         = '\r'
)

var supportedBlockVersions = []uint8{1}

// blockVariant is what differs between the block mode bootloaders.
type blockVariant struct {
	name       string
	hello      []byte
	signatures [][]byte
	// wordAddress sends block addresses as 16-bit word addresses.
	wordAddress bool
	// framedData prefixes data with the block length and a separator.
	framedData bool
}

var rf200Variant = blockVariant{
	name:  "ATmega128RFA1",
	hello: []byte{0x00, 0xF9},
	signatures: [][]byte{
		{0x01, 0xA7, 0x1E}, // ATmega128RFA1
		{0x04, 0x97, 0x1E}, // test board
	},
	wordAddress: true,
	framedData:  true,
}

var rf300Variant = blockVariant{
	name:  "Si1000",
	hello: []byte{0xF9},
	signatures: [][]byte{
		{0xD0}, // Si1000
		{0xD2}, // Si1002
		{0xD4}, // Si1004
	},
}

type blockProtocol struct {
	f *Flasher
	v blockVariant

	blockLen  int
	numBlocks int
	combined  *firmware.CombinedImage
	next      int
	current   *firmware.Record

	// planned is the number of writes expected after the hello. It grows
	// with every retry.
	planned int
}

func newBlockProtocol(f *Flasher, v blockVariant) *blockProtocol {
	return &blockProtocol{f: f, v: v}
}

func (p *blockProtocol) handlers() map[State]func() {
	return map[State]func(){
		StateIncomingWait:      p.handleIncoming,
		StateBlockCmdResponse:  p.handleBlockMode,
		StateSignatureResponse: p.handleSignature,
		StateInfoResponse:      p.handleInfo,
		StateAddressResponse:   p.handleAddress,
		StateDataResponse:      p.handleData,
		StateExitResponse:      p.handleExit,
	}
}

func (p *blockProtocol) begin() {}

func (p *blockProtocol) handleIncoming() {
	f := p.f
	if !bytes.HasSuffix(f.input, p.v.hello) {
		logrus.Info("Did not receive expected hello message")
		if n := len(p.v.hello) - 1; len(f.input) > n {
			f.input = f.input[len(f.input)-n:]
		}
		return
	}
	f.input = nil
	f.handshakeDone()
	// handshake plus exit until the device reports its size
	p.planned = handshakeWrites + 1
	if f.write([]byte{blockHelloAck}) {
		p.send(StateBlockCmdResponse, blockModeCommand)
	}
}

func (p *blockProtocol) handleBlockMode() {
	f := p.f
	if len(f.input) < 3 {
		return
	}
	reply := f.input
	f.input = nil
	if reply[0] != blockModeAccept {
		f.fail(ProtocolError, errors.Wrapf(ErrEnterBlockModeFailed, "reply % X", reply))
		return
	}
	p.blockLen = int(binary.BigEndian.Uint16(reply[1:3]))
	if p.blockLen == 0 {
		f.fail(ProtocolError, errors.Wrap(ErrEnterBlockModeFailed, "zero block length"))
		return
	}
	logrus.Debugf("Block length %d", p.blockLen)
	p.send(StateSignatureResponse, signatureCommand)
}

func (p *blockProtocol) handleSignature() {
	f := p.f
	if len(f.input) < len(p.v.signatures[0]) {
		return
	}
	sig := f.input
	f.input = nil
	supported := slices.IndexFunc(p.v.signatures, func(s []byte) bool {
		return bytes.HasPrefix(sig, s)
	}) >= 0
	if !supported {
		f.fail(ProtocolError, errors.Wrapf(ErrUnsupportedSignature, "% X", sig))
		return
	}
	logrus.Infof("Found %s with signature % X", p.v.name, sig)
	p.send(StateInfoResponse, infoCommand)
}

func (p *blockProtocol) handleInfo() {
	f := p.f
	if len(f.input) < 3 {
		return
	}
	reply := f.input
	f.input = nil
	version := reply[0]
	if !slices.Contains(supportedBlockVersions, version) {
		f.fail(ProtocolError, errors.Wrapf(ErrUnsupportedVersion, "version %d", version))
		return
	}
	p.numBlocks = int(binary.BigEndian.Uint16(reply[1:3]))
	logrus.Debugf("Bootloader version %d, %d blocks", version, p.numBlocks)

	combined, err := f.image.Combine(p.blockLen, p.blockLen*p.numBlocks, 1)
	if err != nil {
		f.fail(ProtocolError, err)
		return
	}
	p.combined = combined
	p.planned = handshakeWrites + p.dataWrites() + 1
	// combining may have taken a while
	f.touch()

	if len(combined.Blocks) == 0 {
		logrus.Warn("Image holds no programmed block")
		p.sendExit()
		return
	}
	p.current = combined.Blocks[0]
	p.next = 1
	p.sendSetAddress()
}

func (p *blockProtocol) handleAddress() {
	f := p.f
	reply := f.input
	f.input = nil
	if reply[0] != addressAck {
		f.fail(ProtocolError, errors.Wrapf(ErrAddressChangeFailed, "reply % X", reply))
		return
	}
	p.sendData()
}

func (p *blockProtocol) handleData() {
	f := p.f
	if len(f.input) < 2 {
		return
	}
	received := binary.BigEndian.Uint16(f.input[:2])
	f.input = nil
	expected := firmware.Sum16(p.current.Data)
	if received == expected {
		f.retries = 0
		p.sendNext()
		return
	}
	if !f.retry() {
		f.fail(RetryExhausted, errors.Wrapf(ErrMaxRetriesExceeded, "block %04X", p.current.Address))
		return
	}
	logrus.Infof("Retrying data (%d of %d), received checksum %04X, should be %04X",
		f.retries, f.cfg.WriteRetries, received, expected)
	// address and data again
	p.planned += 2
	p.sendSetAddress()
}

func (p *blockProtocol) handleExit() {
	p.f.input = nil
	p.f.finish()
}

// dataWrites counts the address and data commands needed for the combined
// image, following the contiguity rule of sendNext.
func (p *blockProtocol) dataWrites() int {
	n := 0
	var prev *firmware.Record
	for _, b := range p.combined.Blocks {
		if prev == nil || b.Address != prev.Address+uint32(p.blockLen) {
			n++
		}
		n++
		prev = b
	}
	return n
}

// sendNext moves on to the next block. A block that does not follow the
// previous one gets its own address command.
func (p *blockProtocol) sendNext() {
	if p.next >= len(p.combined.Blocks) {
		logrus.Debug("Finished sending data")
		p.sendExit()
		return
	}
	prev := p.current
	p.current = p.combined.Blocks[p.next]
	p.next++
	if p.current.Address != prev.Address+uint32(p.blockLen) {
		p.sendSetAddress()
		return
	}
	p.sendData()
}

func (p *blockProtocol) sendSetAddress() {
	addr := p.current.Address
	if p.v.wordAddress {
		addr /= 2
	}
	logrus.Debugf("send_set_address(%04X)", addr)
	cmd := []byte{addressCommand, 0, 0}
	binary.BigEndian.PutUint16(cmd[1:], uint16(addr))
	p.sendFrame(StateAddressResponse, cmd)
}

func (p *blockProtocol) sendData() {
	logrus.Debugf("send_data @%04X", p.current.Address)
	var frame []byte
	if p.v.framedData {
		frame = []byte{dataCommand, 0, 0, dataFrameSeparator}
		binary.BigEndian.PutUint16(frame[1:3], uint16(p.blockLen))
	} else {
		frame = []byte{dataCommand}
	}
	frame = append(frame, p.current.Data...)
	p.sendFrame(StateDataResponse, frame)
}

func (p *blockProtocol) sendExit() {
	p.send(StateExitResponse, exitCommand)
}

func (p *blockProtocol) send(next State, cmd byte) {
	p.sendFrame(next, []byte{cmd})
}

// sendFrame writes a command and moves to the state awaiting its reply. Each
// write after the hello counts as one progress step.
func (p *blockProtocol) sendFrame(next State, frame []byte) {
	if p.f.write(frame) {
		p.f.state = next
		p.f.setProgress(p.f.progress+1, p.planned)
	}
}
