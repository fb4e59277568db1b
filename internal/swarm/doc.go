// Package swarm 实现品牌分析蜂群：四位分析师错峰并行执行，随后由综合代理
// 汇总为最终结论。执行过程通过 tracker 事件总线对外可见。
package swarm
