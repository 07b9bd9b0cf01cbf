/*
Package objstore provides ObjectStore, a map from object ids to typed values
stored in network-attached memory.

The store keeps one RemoteLocation per id in a concurrent map. The first put of
an id allocates a region sized to the serialized value, later puts overwrite it
in place. Values are encoded with a serde.ISerializer.

Usage:

	tr := rpcclient.NewRPCMemory(0, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
	if err := tr.Connect("localhost:8080"); err != nil { ... }

	store := objstore.New(tr, serde.Float64Vector(128), nil)
	err := store.Put(1, vector)
	v, err := store.Get(1)

	// errors.Is(err, objstore.ErrNoSuchID) for unknown ids

Objects are never reallocated. Overwriting with a larger value fails with
ErrSizeMismatch, remove the object first to store it with a new size.
*/
package objstore
