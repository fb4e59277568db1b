package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"Danni-Agent/internal/web3"
	"Danni-Agent/internal/web3/ethereum"
)

// Dialer opens a client for one chain definition.
type Dialer func(ctx context.Context, name string, def web3.ChainDefinition) (web3.Client, error)

// DialEthereum is the default Dialer backed by ethclient.
func DialEthereum(ctx context.Context, name string, def web3.ChainDefinition) (web3.Client, error) {
	return ethereum.NewClient(ctx, ethereum.Config{
		Name:   name,
		RPCURL: def.RPCURL,
		Notes:  def.Description,
	})
}

// Option customises a Registry.
type Option func(*options)

type options struct {
	dialer Dialer
}

// WithDialer replaces the function used to open chain clients.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// Registry manages a set of chain clients keyed by human readable names.
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
	defs         map[string]web3.ChainDefinition
}

// NewRegistry dials every chain in defs. When defaultChain is empty the
// alphabetically first chain becomes the default.
func NewRegistry(ctx context.Context, defs web3.ChainDefinitions, defaultChain string, opts ...Option) (*Registry, error) {
	o := options{dialer: DialEthereum}
	for _, opt := range opts {
		opt(&o)
	}

	clients := make(map[string]web3.Client, len(defs.Chains))
	definitions := make(map[string]web3.ChainDefinition, len(defs.Chains))
	for name, chain := range defs.Chains {
		if strings.TrimSpace(chain.RPCURL) == "" {
			closeClients(clients)
			return nil, fmt.Errorf("链 %s 未配置 rpc_url", name)
		}
		client, err := o.dialer(ctx, name, chain)
		if err != nil {
			closeClients(clients)
			return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
		}
		clients[name] = client
		definitions[name] = chain
	}

	if len(clients) == 0 {
		return nil, errors.New("未配置任何链的 RPC 端点")
	}

	if defaultChain == "" {
		defaultChain = sortedKeys(clients)[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		closeClients(clients)
		return nil, fmt.Errorf("默认链 %s 未在配置中找到", defaultChain)
	}

	return &Registry{defaultChain: defaultChain, clients: clients, defs: definitions}, nil
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (web3.Client, error) {
	if r == nil {
		return nil, errors.New("未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, fmt.Errorf("默认链 %s 未在注册表中", r.defaultChain)
	}
	return client, nil
}

// DefaultDefinition returns the chain definition of the default chain.
func (r *Registry) DefaultDefinition() web3.ChainDefinition {
	if r == nil {
		return web3.ChainDefinition{}
	}
	return r.defs[r.defaultChain]
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Definition returns the definition the named client was built from.
func (r *Registry) Definition(name string) (web3.ChainDefinition, bool) {
	if r == nil {
		return web3.ChainDefinition{}, false
	}
	def, ok := r.defs[name]
	return def, ok
}

// Snapshots collects health metadata from every chain. Failing chains are
// reported in the error map and omitted from the result.
func (r *Registry) Snapshots(ctx context.Context) ([]web3.ChainSnapshot, map[string]error) {
	if r == nil {
		return nil, nil
	}
	var (
		snaps []web3.ChainSnapshot
		errs  map[string]error
	)
	for _, name := range r.Chains() {
		snap, err := r.clients[name].Snapshot(ctx)
		if err != nil {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[name] = err
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, errs
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	closeClients(r.clients)
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	return sortedKeys(r.clients)
}

func closeClients(clients map[string]web3.Client) {
	for name, client := range clients {
		if client != nil {
			client.Close()
		}
		delete(clients, name)
	}
}

func sortedKeys(clients map[string]web3.Client) []string {
	names := make([]string, 0, len(clients))
	for name := range clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
