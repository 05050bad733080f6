// Package objtable implements the fixed-capacity object table the collector
// runs against: a dense index to object record mapping with an atomic flag
// word per record.
//
// The collector consumes the table through the Store capability interface and
// never owns instances; it observes and transitions flag bits and ultimately
// asks the table to free a slot once an instance has finished its two-phase
// destruction. Records never move: a slot index stays valid until Free, and a
// freed slot's serial number is bumped so stale weak references read as null.
//
// The permanent pool occupies the lowest indices and is frozen before
// ordinary allocation starts; the collector skips it with an O(1) range
// check.
package objtable
