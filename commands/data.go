package commands

import (
	"context"
	"strings"

	"github.com/MegaGrindStone/go-amcp"
)

// RegisterData installs the DATA commands.
func RegisterData(r *amcp.Registry) {
	r.Register(amcp.ScopeBare, "DATA STORE", amcp.Command{MinParams: 2, Handler: dataStore})
	r.Register(amcp.ScopeBare, "DATA RETRIEVE", amcp.Command{MinParams: 1, Handler: dataRetrieve})
	r.Register(amcp.ScopeBare, "DATA LIST", amcp.Command{Handler: dataList})
	r.Register(amcp.ScopeBare, "DATA REMOVE", amcp.Command{MinParams: 1, Handler: dataRemove})
}

func dataStore(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	store, err := dataStoreOf(cc, inv)
	if err != nil {
		return nil, err
	}
	if err := store.Store(ctx, inv.Parameters[0], inv.Parameters[1]); err != nil {
		return nil, err
	}
	return amcp.OK(202, "DATA STORE"), nil
}

// dataRetrieve replies with the dataset on one payload line; line breaks inside it are sent as
// the two characters `\n`.
func dataRetrieve(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	store, err := dataStoreOf(cc, inv)
	if err != nil {
		return nil, err
	}

	data, err := store.Retrieve(ctx, inv.Parameters[0])
	if err != nil {
		return nil, err
	}

	data = strings.ReplaceAll(data, "\r\n", "\n")
	data = strings.ReplaceAll(data, "\n", `\n`)
	return amcp.OK(201, "DATA RETRIEVE", data), nil
}

func dataList(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	store, err := dataStoreOf(cc, inv)
	if err != nil {
		return nil, err
	}

	names, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	for i, name := range names {
		names[i] = strings.ToUpper(name)
	}
	return amcp.List("DATA LIST", names), nil
}

func dataRemove(ctx context.Context, cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.Result, error) {
	store, err := dataStoreOf(cc, inv)
	if err != nil {
		return nil, err
	}
	if err := store.Remove(ctx, inv.Parameters[0]); err != nil {
		return nil, err
	}
	return amcp.OK(202, "DATA REMOVE"), nil
}

func dataStoreOf(cc *amcp.CommandContext, inv *amcp.Invocation) (amcp.DataStore, error) {
	if cc.Data == nil {
		return nil, amcp.NewError(amcp.UnknownError, inv.Name, "no data store configured")
	}
	return cc.Data, nil
}

