/*
Package rag 为辩论提供检索增强（grounding）能力。

# 概述

辩论引擎只把检索视为黑盒函数 retrieve(query, topK) → [(text, score)]。
本包给出该函数的实现：先把查询向量化，再在向量库中做相似度搜索。
同时提供文档入库管线，把参考资料分块、向量化并写入向量库。

# 核心类型

  - VectorStore         — 向量存储接口（Upsert / Search / Delete / Count）
  - InMemoryVectorStore — 进程内余弦相似度实现，用于测试与小规模部署
  - QdrantStore         — 基于 Qdrant REST API 的实现
  - Retriever           — 查询向量化 + 搜索，返回 ScoredText
  - Chunker / Ingestor  — 按字符预算分块（带重叠）并批量入库
*/
package rag
