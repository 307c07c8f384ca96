// Package netio provides the non-blocking UDP socket primitives the relay
// engine's single poll() loop is built on: raw, family-aware sockets with
// IP_TOS support, a reusable poll(2) descriptor set, and the even/odd
// RTP/RTCP port-pair allocator.
//
// Every socket here is created non-blocking and is read/written with
// recvfrom(2)/sendto(2) directly -- there is no per-socket goroutine and no
// buffering beyond what the kernel holds, matching the engine's single-
// threaded, cooperative scheduling model (spec.md section 5).
package netio
