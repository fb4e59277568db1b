package erc8004

const identityRegistryABI = `[
	{"name":"register","type":"function","stateMutability":"nonpayable",
	 "inputs":[{"name":"agentURI","type":"string"}],
	 "outputs":[{"name":"agentId","type":"uint256"}]},
	{"name":"getAgentId","type":"function","stateMutability":"view",
	 "inputs":[{"name":"agentURI","type":"string"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

const reputationRegistryABI = `[
	{"name":"giveFeedback","type":"function","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"agentId","type":"uint256"},
		{"name":"value","type":"int128"},
		{"name":"decimals","type":"uint8"},
		{"name":"tag1","type":"string"},
		{"name":"tag2","type":"string"},
		{"name":"endpoint","type":"string"},
		{"name":"feedbackURI","type":"string"},
		{"name":"feedbackHash","type":"bytes32"}],
	 "outputs":[]},
	{"name":"getSummary","type":"function","stateMutability":"view",
	 "inputs":[
		{"name":"agentId","type":"uint256"},
		{"name":"clientAddresses","type":"address[]"},
		{"name":"tag1","type":"string"},
		{"name":"tag2","type":"string"}],
	 "outputs":[{"name":"count","type":"uint256"},{"name":"avg","type":"int128"}]}
]`
