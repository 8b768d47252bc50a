/*
Package persona 定义辩论参与者（Persona）的静态画像与注册表。

# 概述

每个 Persona 描述一个由 LLM 扮演的角色：身份、专长、介入时机、
行为权重、回复长度与语言约束，以及用于关键词兜底选择的话题词表。
Persona 在启动时加载并校验，运行期间不可变。

# 核心类型

  - Persona  — 单个角色定义，Validate 在加载时拒绝不合法的配置
  - Weights  — 四个 [0,1] 区间的行为权重，仅用于提示词描述
  - Registry — 按插入顺序保存的只读注册表，要求恰好一个主持人

# 加载

  - Defaults  — 内置的五个角色（主持人、商业策略、技术负责人、创意、研究员）
  - Load      — 从 YAML 读取 personas 列表并逐项校验
  - LoadFile  — 从文件路径加载
*/
package persona
