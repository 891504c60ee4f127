package transport

import (
	"time"
)

// decodeFrame reads one frame from b, dispatching on its leading varint
// type field, and returns the frame plus bytes consumed (spec.md §4.2).
func decodeFrame(b []byte) (frame, int, error) {
	var typ uint64
	n := getVarint(b, &typ)
	if n == 0 {
		return nil, 0, newError(FrameEncodingError, "frame type")
	}
	var f frame
	switch typ {
	case frameTypePadding:
		f = &paddingFrame{}
	case frameTypePing:
		f = &pingFrame{}
	case frameTypeAck, frameTypeAckECN:
		f = &ackFrame{}
	case frameTypeResetStream:
		f = &resetStreamFrame{}
	case frameTypeStopSending:
		f = &stopSendingFrame{}
	case frameTypeCrypto:
		f = &cryptoFrame{}
	case frameTypeNewToken:
		f = &newTokenFrame{}
	case frameTypeMaxData:
		f = &maxDataFrame{}
	case frameTypeMaxStreamData:
		f = &maxStreamDataFrame{}
	case frameTypeMaxStreamsBidi, frameTypeMaxStreamsUni:
		f = &maxStreamsFrame{}
	case frameTypeDataBlocked:
		f = &dataBlockedFrame{}
	case frameTypeStreamDataBlocked:
		f = &streamDataBlockedFrame{}
	case frameTypeStreamsBlockedBidi, frameTypeStreamsBlockedUni:
		f = &streamsBlockedFrame{}
	case frameTypeNewConnectionID:
		f = &newConnectionIDFrame{}
	case frameTypeRetireConnectionID:
		f = &retireConnectionIDFrame{}
	case frameTypePathChallenge:
		f = &pathChallengeFrame{}
	case frameTypePathResponse:
		f = &pathResponseFrame{}
	case frameTypeConnectionClose, frameTypeApplicationClose:
		f = &connectionCloseFrame{}
	case frameTypeHandshakeDone:
		f = &handshakeDoneFrame{}
	default:
		if typ >= frameTypeStream && typ <= frameTypeStreamEnd {
			f = &streamFrame{}
		} else {
			return nil, 0, newError(FrameEncodingError, "unknown frame type")
		}
	}
	consumed, err := f.(interface{ decode([]byte) (int, error) }).decode(b)
	if err != nil {
		return nil, 0, err
	}
	return f, consumed, nil
}

// recvFrames parses and applies every frame in a decrypted packet payload
// (spec.md §4.2 "dispatch"), tracking whether any were ack-eliciting (to
// feed the ack tracker) or non-probing (to detect path migration).
func (c *Conn) recvFrames(space packetSpace, payload []byte, now time.Time) (eliciting, nonProbing bool, err error) {
	off := 0
	for off < len(payload) {
		f, n, err := decodeFrame(payload[off:])
		if err != nil {
			return eliciting, nonProbing, err
		}
		off += n
		var typ uint64
		getVarint(payload[off-n:], &typ)
		if isFrameAckEliciting(typ) {
			eliciting = true
		}
		if isFrameNonProbing(typ) {
			nonProbing = true
		}
		c.logFrameProcessed(f, now)
		if err := c.recvFrame(space, f, now); err != nil {
			return eliciting, nonProbing, err
		}
	}
	return eliciting, nonProbing, nil
}

func (c *Conn) recvFrame(space packetSpace, f frame, now time.Time) error {
	switch v := f.(type) {
	case *paddingFrame, *pingFrame:
		return nil
	case *ackFrame:
		return c.recvFrameAck(space, v, now)
	case *cryptoFrame:
		return c.recvFrameCrypto(space, v)
	case *newTokenFrame:
		c.token = v.token
		return nil
	case *streamFrame:
		return c.recvFrameStream(v, now)
	case *resetStreamFrame:
		return c.recvFrameResetStream(v, now)
	case *stopSendingFrame:
		return c.recvFrameStopSending(v)
	case *maxDataFrame:
		c.flow.setMaxSend(v.maximumData)
		return nil
	case *maxStreamDataFrame:
		if st := c.streams.get(v.streamID); st != nil {
			st.flow.setMaxSend(v.maximumData)
		}
		return nil
	case *maxStreamsFrame:
		if v.bidi {
			c.streams.setPeerMaxStreamsBidi(v.maximumStreams)
		} else {
			c.streams.setPeerMaxStreamsUni(v.maximumStreams)
		}
		return nil
	case *dataBlockedFrame, *streamDataBlockedFrame, *streamsBlockedFrame:
		return nil // informational; no local action required
	case *newConnectionIDFrame:
		retired, err := c.remoteCIDs.addRemote(v.sequenceNumber, v.connectionID, v.resetToken, v.retirePriorTo)
		if err != nil {
			return err
		}
		for _, r := range retired {
			c.pendingRetireCIDs = append(c.pendingRetireCIDs, r.seq)
		}
		return nil
	case *retireConnectionIDFrame:
		c.localCIDs.markRetiring(v.sequenceNumber, now, c.recovery.probeTimeout())
		return nil
	case *pathChallengeFrame:
		c.pathValidation.onChallenge(v.data)
		return nil
	case *pathResponseFrame:
		if c.pathValidation.onResponse(v.data) {
			if c.migratingDCID != nil {
				if old, ok := c.remoteCIDs.byValue(c.migratingDCID); ok {
					c.pendingRetireCIDs = append(c.pendingRetireCIDs, old.seq)
				}
				c.migratingDCID = nil
			}
			if c.callbacks.PathValidation != nil {
				c.callbacks.PathValidation(c.pathValidation.path, true)
			}
		}
		return nil
	case *connectionCloseFrame:
		c.closeFrame = v
		c.setDraining(now)
		return nil
	case *handshakeDoneFrame:
		c.dropPacketSpace(packetSpaceHandshake)
		return nil
	}
	return nil
}

func (c *Conn) recvFrameAck(space packetSpace, f *ackFrame, now time.Time) error {
	if err := f.validate(); err != nil {
		return err
	}
	ranges := f.toRangeSet()
	ackDelay := time.Duration(f.ackDelay) * time.Microsecond << c.localParams.AckDelayExponent
	if err := c.recovery.onAckReceived(ranges, ackDelay, space, now); err != nil {
		return err
	}
	c.recovery.drainAcked(space, func(p sentPacket) {
		for _, fr := range p.frames {
			c.onFrameAcked(fr)
		}
	})
	c.recovery.drainLost(space, func(p sentPacket) {
		c.lostPacketCount++
		c.rescheduleLost(p)
	})
	return nil
}

// onFrameAcked applies the bookkeeping side-effect of a frame whose
// containing packet has now been acknowledged (spec.md §4.6 step 2).
func (c *Conn) onFrameAcked(f frame) {
	switch v := f.(type) {
	case *streamFrame:
		if st := c.streams.get(v.streamID); st != nil {
			st.send.ack(v.offset, uint64(len(v.data)))
			if streamTerminated(st) {
				c.streams.remove(st.id, st.bidi, isStreamLocal(st.id, c.isClient))
				c.addEvent(newStreamCompleteEvent(st.id))
			}
		}
	case *maxStreamDataFrame:
		if st := c.streams.get(v.streamID); st != nil {
			st.ackMaxData()
		}
	case *maxDataFrame:
		c.flow.commitMaxRecv()
	case *maxStreamsFrame:
		if v.bidi {
			c.streams.commitMaxStreamsBidi(v.maximumStreams)
		} else {
			c.streams.commitMaxStreamsUni(v.maximumStreams)
		}
	case *resetStreamFrame:
		if st := c.streams.get(v.streamID); st != nil {
			st.rstAcked = true
			if streamTerminated(st) {
				c.streams.remove(st.id, st.bidi, isStreamLocal(st.id, c.isClient))
				c.addEvent(newStreamCompleteEvent(st.id))
			}
		}
	case *retireConnectionIDFrame:
		c.localCIDs.reap(time.Now())
	}
}

// rescheduleLost re-queues a lost packet's retransmittable frames for
// resend (spec.md §4.6 step 1).
func (c *Conn) rescheduleLost(p sentPacket) {
	for _, f := range p.frames {
		switch v := f.(type) {
		case *streamFrame:
			if st := c.streams.get(v.streamID); st != nil {
				st.send.push(v.data, v.offset, v.fin)
			}
		case *cryptoFrame:
			c.spaces[p.space].crypto.send.push(v.data, v.offset, false)
		case *maxDataFrame:
			c.flow.extendMaxRecv(v.maximumData)
		case *maxStreamDataFrame:
			if st := c.streams.get(v.streamID); st != nil {
				st.flow.extendMaxRecv(v.maximumData)
				st.updateMaxData = true
			}
		case *maxStreamsFrame:
			if v.bidi {
				if c.streams.sentMaxStreamsBidi >= v.maximumStreams {
					c.streams.sentMaxStreamsBidi = v.maximumStreams - 1
				}
			} else {
				if c.streams.sentMaxStreamsUni >= v.maximumStreams {
					c.streams.sentMaxStreamsUni = v.maximumStreams - 1
				}
			}
		case *resetStreamFrame:
			if st := c.streams.get(v.streamID); st != nil && !st.rstAcked {
				st.resetPending = true
			}
		case *stopSendingFrame:
			if st := c.streams.get(v.streamID); st != nil {
				st.localStopPending = true
			}
		case *newConnectionIDFrame:
			if id, ok := c.localCIDs.get(v.sequenceNumber); ok && !id.retiring {
				c.pendingNewCIDs = append(c.pendingNewCIDs, id)
			}
		case *retireConnectionIDFrame:
			c.pendingRetireCIDs = append(c.pendingRetireCIDs, v.sequenceNumber)
		}
	}
}

func (c *Conn) recvFrameCrypto(space packetSpace, f *cryptoFrame) error {
	if err := c.spaces[space].crypto.pushRecv(f.data, f.offset, false); err != nil {
		return err
	}
	data := c.spaces[space].crypto.recv.rob.popAll()
	if len(data) > 0 {
		c.handshake.feedCryptoData(space, data)
	}
	return nil
}

func (c *Conn) recvFrameStream(f *streamFrame, now time.Time) error {
	st, err := c.getOrCreateStream(f.streamID)
	if err != nil {
		return err
	}
	if st.shutRD {
		return nil
	}
	need := 0
	if f.offset+uint64(len(f.data)) > st.flow.recvOffset {
		need = int(f.offset + uint64(len(f.data)) - st.flow.recvOffset)
	}
	if uint64(need) > st.flow.canRecv() || uint64(need) > c.flow.canRecv() {
		return errFlowControl
	}
	if err := st.pushRecv(f.data, f.offset, f.fin); err != nil {
		return err
	}
	st.flow.addRecv(need, now)
	c.flow.addRecv(need, now)
	c.addEvent(newEventStream(st.id))
	return nil
}

func (c *Conn) recvFrameResetStream(f *resetStreamFrame, now time.Time) error {
	st, err := c.getOrCreateStream(f.streamID)
	if err != nil {
		return err
	}
	mayRecv, err := st.recv.reset(f.finalSize)
	if err != nil {
		return err
	}
	if uint64(mayRecv) > c.flow.canRecv() {
		return errFlowControl
	}
	c.flow.addRecv(mayRecv, now)
	st.recvRST = true
	st.shutRD = true
	c.addEvent(newStreamResetEvent(st.id, f.errorCode))
	return nil
}

// recvFrameStopSending applies a peer's STOP_SENDING by queuing a
// RESET_STREAM of our own, carrying the stream's current write offset as
// its final size (spec.md §4.9 "Reset/Stop"): the actual frame is built and
// sent from writeSpace once st.stopSending is observed there.
func (c *Conn) recvFrameStopSending(f *stopSendingFrame) error {
	st := c.streams.get(f.streamID)
	if st == nil {
		return nil
	}
	st.stopSending = true
	st.stopSendingErrorCode = f.errorCode
	if !st.sentRST {
		st.resetPending = true
	}
	c.addEvent(newStreamStopEvent(st.id, f.errorCode))
	return nil
}

// Write produces the next outgoing UDP datagram into b, or (0, nil) if
// there is nothing to send right now (spec.md §4.12 "send").
func (c *Conn) Write(b []byte, now time.Time) (int, error) {
	if c.state == stateClosing {
		return c.writeClose(b)
	}
	for space := packetSpace(0); space < packetSpaceCount; space++ {
		if c.spaces[space].discarded {
			continue
		}
		n, err := c.writeSpace(space, b, now)
		if err != nil {
			return 0, err
		}
		if n > 0 {
			return n, nil
		}
	}
	return 0, nil
}

func (c *Conn) writeClose(b []byte) (int, error) {
	if c.closeSent || c.closeFrame == nil {
		return 0, nil
	}
	frames := []frame{c.closeFrame}
	n, err := c.encodePacket(packetSpaceApplication, frames, nil)
	if err != nil {
		return 0, err
	}
	copy(b, n)
	c.closeSent = true
	return len(n), nil
}

// writeSpace builds and protects one packet's worth of frames for space,
// applying congestion and flow control budgets (spec.md §4.12).
func (c *Conn) writeSpace(space packetSpace, b []byte, now time.Time) (int, error) {
	budget := c.maxPacketSize()
	if avail := c.recovery.availableWindow(); avail < budget {
		budget = avail
	}
	if budget <= 0 {
		return 0, nil
	}
	var frames []frame
	size := 0

	if c.spaces[space].ackTr.requireActiveAck(c.recovery.maxAckDelay, now) {
		ranges := c.spaces[space].ackTr.ranges()
		if len(ranges) > 0 {
			af := newAckFrame(0, ranges)
			frames = append(frames, af)
			size += af.encodedLen()
			c.spaces[space].ackTr.commitAck()
		}
	}

	for size < budget {
		data, offset, fin := c.spaces[space].crypto.popSend(budget - size - maxCryptoFrameOverhead)
		if data == nil && !fin {
			break
		}
		cf := newCryptoFrame(data, offset)
		frames = append(frames, cf)
		size += cf.encodedLen()
		if len(data) == 0 {
			break
		}
	}

	if space == packetSpaceApplication {
		if c.state == statePostHandshake && !c.handshakeDoneSent() {
			frames = append(frames, &handshakeDoneFrame{})
			size++
			c.markHandshakeDoneSent()
		}

		rxBandwidth := c.flow.recvBandwidth(now)
		srtt := c.recovery.smoothedRTT.Seconds()
		if c.flow.shouldUpdateMaxRecv() || c.flow.shouldUpdateMaxRecvBandwidth(rxBandwidth, srtt) {
			mf := newMaxDataFrame(c.flow.maxRecvNext)
			if size+mf.encodedLen() <= budget {
				frames = append(frames, mf)
				size += mf.encodedLen()
				c.flow.commitMaxRecv()
			}
		}

		for id, st := range c.streams.streams {
			if size >= budget {
				break
			}
			if st.resetPending && size+maxStreamFrameOverhead <= budget {
				errorCode := st.appErrorCode
				if st.stopSending {
					errorCode = st.stopSendingErrorCode
				}
				rf := newResetStreamFrame(id, errorCode, st.send.writeOffset)
				if size+rf.encodedLen() <= budget {
					frames = append(frames, rf)
					size += rf.encodedLen()
					st.resetPending = false
					st.sentRST = true
				}
			}
			if st.localStopPending && size+maxStreamFrameOverhead <= budget {
				sf := newStopSendingFrame(id, st.localStopErrorCode)
				if size+sf.encodedLen() <= budget {
					frames = append(frames, sf)
					size += sf.encodedLen()
					st.localStopPending = false
				}
			}
			if st.updateMaxData || st.flow.shouldUpdateMaxRecv() {
				mf := newMaxStreamDataFrame(id, st.flow.maxRecvNext)
				if size+mf.encodedLen() <= budget {
					frames = append(frames, mf)
					size += mf.encodedLen()
					st.flow.commitMaxRecv()
					st.updateMaxData = false
				}
			}
			if st.sentRST || !st.send.hasPending() {
				continue
			}
			room := budget - size - maxStreamFrameOverhead
			if room <= 0 {
				continue
			}
			if int(st.flow.canSend()) < room {
				room = int(st.flow.canSend())
			}
			if int(c.flow.canSend()) < room {
				room = int(c.flow.canSend())
			}
			if room <= 0 {
				continue
			}
			data, offset, fin := st.popSend(room)
			if data == nil && !fin {
				continue
			}
			sf := newStreamFrame(id, data, offset, fin)
			frames = append(frames, sf)
			size += sf.encodedLen()
			st.flow.addSend(len(data))
			c.flow.addSend(len(data))
		}

		if max, ok := c.streams.pendingMaxStreamsBidi(); ok {
			f := newMaxStreamsFrame(max, true)
			if size+f.encodedLen() <= budget {
				frames = append(frames, f)
				size += f.encodedLen()
				c.streams.commitMaxStreamsBidi(max)
			}
		}
		if max, ok := c.streams.pendingMaxStreamsUni(); ok {
			f := newMaxStreamsFrame(max, false)
			if size+f.encodedLen() <= budget {
				frames = append(frames, f)
				size += f.encodedLen()
				c.streams.commitMaxStreamsUni(max)
			}
		}

		for len(c.pendingNewCIDs) > 0 && size < budget {
			id := c.pendingNewCIDs[0]
			cf := newNewConnectionIDFrame(id.seq, c.localCIDs.retirePriorTo, id.id, id.token)
			if size+cf.encodedLen() > budget {
				break
			}
			frames = append(frames, cf)
			size += cf.encodedLen()
			c.pendingNewCIDs = c.pendingNewCIDs[1:]
		}
		for len(c.pendingRetireCIDs) > 0 && size < budget {
			seq := c.pendingRetireCIDs[0]
			rf := newRetireConnectionIDFrame(seq)
			if size+rf.encodedLen() > budget {
				break
			}
			frames = append(frames, rf)
			size += rf.encodedLen()
			c.pendingRetireCIDs = c.pendingRetireCIDs[1:]
		}
		if c.pathValidation.pendingChallenge {
			frames = append(frames, newPathChallengeFrame(c.pathValidation.data))
			c.pathValidation.pendingChallenge = false
			size += 9
		}
		if c.pathValidation.pendingResponse != nil {
			frames = append(frames, newPathResponseFrame(*c.pathValidation.pendingResponse))
			c.pathValidation.pendingResponse = nil
			size += 9
		}
	}

	if len(frames) == 0 {
		return 0, nil
	}
	out, err := c.encodePacket(space, frames, &size)
	if err != nil {
		return 0, err
	}
	copy(b, out)
	return len(out), nil
}

func (c *Conn) handshakeDoneSent() bool { return c.handshakeDoneFrameSent }
func (c *Conn) markHandshakeDoneSent()  { c.handshakeDoneFrameSent = true }

// encodePacket assembles and protects one packet carrying frames, then
// records it in the retransmit buffer (spec.md §4.3, §4.6).
func (c *Conn) encodePacket(space packetSpace, frames []frame, payloadLen *int) ([]byte, error) {
	keys := c.spaces[space].txKeys
	if !keys.isSet {
		return nil, newError(DiscardPacket, "no tx keys for space")
	}
	pn := c.spaces[space].nextPacketNumber
	c.spaces[space].nextPacketNumber++

	hasLargestAcked, largestAcked := c.largestAckedInSpace(space)
	p := &packet{
		typ:             packetTypeFromSpace(space),
		packetNumber:    pn,
		packetNumberLen: packetNumberLen(pn, hasLargestAcked, largestAcked),
		header: packetHeader{
			version: c.version,
			dcid:    c.dcid,
			scid:    c.scid,
		},
	}
	if space == packetSpaceApplication {
		p.typ = packetTypeShort
		p.keyPhase = c.keyPhase
	}

	payload := make([]byte, 0, 1500)
	for _, f := range frames {
		fb := make([]byte, f.encodedLen())
		n, err := f.encode(fb)
		if err != nil {
			return nil, err
		}
		payload = append(payload, fb[:n]...)
	}
	const aeadTagLen = 16
	p.payloadLen = p.packetNumberLen + len(payload) + aeadTagLen

	headerBuf := make([]byte, p.encodedLen())
	headerLen, err := p.encode(headerBuf)
	if err != nil {
		return nil, err
	}
	header := headerBuf[:headerLen]

	nonce := packetNumberNonce(keys.ivKey, pn)
	sealed := keys.aead.Seal(nil, nonce, payload, header)

	out := append(header, sealed...)
	pnOffset := headerLen - p.packetNumberLen
	sampleOffset := pnOffset + 4
	if sampleOffset+16 > len(out) {
		pad := make([]byte, sampleOffset+16-len(out))
		out = append(out, pad...)
	}
	mask, err := headerProtectionMaskAES(keys.hpKey, out[sampleOffset:sampleOffset+16])
	if err != nil {
		return nil, err
	}
	applyHeaderProtection(out, pnOffset, p.packetNumberLen, mask, p.typ != packetTypeShort)

	ackEliciting := false
	inFlight := false
	for _, f := range frames {
		var typ uint64
		tb := make([]byte, f.encodedLen())
		f.encode(tb)
		getVarint(tb, &typ)
		if isFrameAckEliciting(typ) {
			ackEliciting = true
			inFlight = true
		}
	}
	sentAt := time.Now()
	c.recovery.onPacketSent(sentPacket{
		packetNumber: pn,
		space:        space,
		timeSent:     sentAt,
		size:         len(out),
		ackEliciting: ackEliciting,
		inFlight:     inFlight,
		frames:       frames,
	}, sentAt)
	c.logPacketSent(p, frames, sentAt)

	return out, nil
}

// largestAckedInSpace reports whether the peer has acked anything yet in
// space, and if so the largest packet number acked. The bool return keeps
// "nothing acked yet" distinguishable from "packet 0 was the largest acked"
// for callers like packetNumberLen that would otherwise treat both as the
// same sentinel value.
func (c *Conn) largestAckedInSpace(space packetSpace) (bool, uint64) {
	return c.recovery.hasLargestAcked[space], c.recovery.largestAcked[space]
}

// Read processes one received UDP datagram (spec.md §4.12 "recv").
func (c *Conn) Read(b []byte, path Path, now time.Time) (int, error) {
	p := &packet{}
	p.header.dcil = uint8(len(c.scid))
	_, err := p.decodeHeader(b)
	if err != nil {
		return 0, err
	}
	if p.typ == packetTypeVersionNegotiation {
		if c.callbacks.RecvVersionNegotiation != nil {
			c.callbacks.RecvVersionNegotiation(p.supportedVersions)
		}
		return len(b), nil
	}
	if p.typ == packetTypeShort {
		if _, ok := c.remoteCIDs.matchStatelessReset(b); ok {
			if c.callbacks.RecvStatelessReset != nil {
				c.callbacks.RecvStatelessReset()
			}
			c.setDraining(now)
			return len(b), nil
		}
	}
	if _, err := p.decodeBody(b); err != nil {
		return 0, err
	}
	space := spaceFromPacketType(p.typ)
	keys := c.spaces[space].rxKeys
	if !keys.isSet {
		c.logPacketDropped(p, now)
		return 0, newError(DiscardPacket, "no rx keys for space")
	}

	pnOffset := p.headerLen
	sampleOffset := pnOffset + 4
	if sampleOffset+16 > len(b) {
		return 0, newError(BufferTooSmall, "header protection sample")
	}
	mask, err := headerProtectionMaskAES(keys.hpKey, b[sampleOffset:sampleOffset+16])
	if err != nil {
		return 0, err
	}
	long := p.typ != packetTypeShort
	if long {
		b[0] ^= mask[0] & 0x0f
	} else {
		b[0] ^= mask[0] & 0x1f
	}
	pnLen := int(b[0]&0x03) + 1
	for i := 0; i < pnLen; i++ {
		b[pnOffset+i] ^= mask[1+i]
	}
	truncated := getTruncatedPacketNumber(b[pnOffset:pnOffset+pnLen], pnLen)
	pn := decodePacketNumber(c.spaces[space].largestRecvPacketNumber, truncated, pnLen*8)

	if c.spaces[space].ackTr.gaps.isPushed(pn) {
		return 0, newError(DiscardPacket, "duplicate packet number")
	}

	header := b[:pnOffset+pnLen]
	end := len(b)
	if p.payloadLen > 0 {
		end = pnOffset + p.payloadLen
		if end > len(b) {
			end = len(b)
		}
	}
	ciphertext := b[pnOffset+pnLen : end]
	nonce := packetNumberNonce(keys.ivKey, pn)
	plaintext, err := keys.aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		c.logPacketDropped(p, now)
		return 0, newError(TLSDecryptError, "aead open failed")
	}
	p.packetNumber = pn
	c.logPacketReceived(p, now)

	if !c.spaces[space].hasLargestRecv || pn > c.spaces[space].largestRecvPacketNumber {
		c.spaces[space].largestRecvPacketNumber = pn
		c.spaces[space].hasLargestRecv = true
	}
	eliciting, nonProbing, err := c.recvFrames(space, plaintext, now)
	if err != nil {
		return 0, err
	}
	if c.state == statePostHandshake && space == packetSpaceApplication && nonProbing {
		c.maybeStartMigration(path, now)
	}
	c.spaces[space].ackTr.add(pn, eliciting, now)
	c.idleDeadline = now.Add(c.idleTimeout)
	c.applyPendingKeyUpdate()

	if err := c.doHandshake(now); err != nil {
		return 0, err
	}

	return len(b), nil
}
